package domain

import (
	"testing"
	"time"
)

func TestPGNResult(t *testing.T) {
	cases := map[string]string{
		ResultWhite:     "1-0",
		ResultBlack:     "0-1",
		ResultDraw:      "1/2-1/2",
		ResultAbandoned: "*",
	}
	for in, want := range cases {
		if got := (MatchResult{Result: in}).PGNResult(); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}

func TestDurationClampsNegative(t *testing.T) {
	now := time.Now()
	if d := (MatchResult{StartedAt: now, EndedAt: now.Add(-time.Second)}).Duration(); d != 0 {
		t.Fatalf("expected 0, got %v", d)
	}
	if d := (MatchResult{StartedAt: now, EndedAt: now.Add(3 * time.Second)}).Duration(); d != 3*time.Second {
		t.Fatalf("expected 3s, got %v", d)
	}
}
