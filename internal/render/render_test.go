package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/park285/chessroom/internal/rules"
)

func TestTextWhiteView(t *testing.T) {
	out, err := Text(string(rules.StartPosition), Options{})
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "8  ♜  ♞") {
		t.Fatalf("rank 8 should be on top with black pieces: %q", lines[1])
	}
	if !strings.HasPrefix(lines[8], "1  ♖  ♘") {
		t.Fatalf("rank 1 should be at the bottom: %q", lines[8])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "a") {
		t.Fatalf("files should start at a: %q", lines[0])
	}
}

func TestTextBlackViewIsFlipped(t *testing.T) {
	out, err := Text(string(rules.StartPosition), ForSeat("black"))
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if !strings.HasPrefix(lines[1], "1  ♖  ♘") {
		t.Fatalf("rank 1 should be on top for black: %q", lines[1])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "h") {
		t.Fatalf("files should start at h: %q", lines[0])
	}
	// h1 rook sits top-left when flipped, king on e1 is fourth from the left
	if !strings.Contains(lines[1], "♖  ♘  ♗  ♔  ♕") {
		t.Fatalf("unexpected back rank %q", lines[1])
	}
}

func TestTextMarksLastMove(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	out, err := Text(fen, Options{LastFrom: "e2", LastTo: "e4", Title: "alice vs bob", Turn: "black to move"})
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(out, "[♙]") || !strings.Contains(out, "[·]") {
		t.Fatalf("last move not marked:\n%s", out)
	}
	if !strings.HasPrefix(out, "alice vs bob\n") || !strings.HasSuffix(out, "black to move\n") {
		t.Fatalf("title or turn missing:\n%s", out)
	}
}

func TestPNGOrientation(t *testing.T) {
	ctx := context.Background()
	white, err := PNG(ctx, string(rules.StartPosition), Options{Title: "room", Turn: "white"})
	if err != nil {
		t.Fatalf("PNG white: %v", err)
	}
	black, err := PNG(ctx, string(rules.StartPosition), Options{Flip: true, Title: "room", Turn: "white"})
	if err != nil {
		t.Fatalf("PNG black: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(white))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != boardSize+sideMargin*2 || b.Dy() != boardSize+topMargin+bottomMargin {
		t.Fatalf("unexpected size %v", b)
	}
	if bytes.Equal(white, black) {
		t.Fatalf("flipped board should differ")
	}
	// 흰 기물은 아래쪽: a1 칸 중앙 부근이 밝아야 한다
	bottomLeft := img.At(sideMargin+squareSize/2, topMargin+boardSize-squareSize/2-6)
	r, g, b, _ := bottomLeft.RGBA()
	if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
		t.Fatalf("expected a light piece near a1, got %v", bottomLeft)
	}
}

func TestPNGWithHighlightAndSelection(t *testing.T) {
	fen := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
	if _, err := PNG(context.Background(), fen, Options{LastFrom: "e7", LastTo: "e5", Selected: "g1"}); err != nil {
		t.Fatalf("PNG: %v", err)
	}
}

func TestBadPosition(t *testing.T) {
	if _, err := PNG(context.Background(), "not a fen", Options{}); !errors.Is(err, rules.ErrBadPosition) {
		t.Fatalf("expected ErrBadPosition, got %v", err)
	}
	if _, err := Text("", Options{}); err == nil {
		t.Fatalf("expected error for empty fen")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PNG(ctx, string(rules.StartPosition), Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
