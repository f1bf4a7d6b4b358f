package domain

import "time"

// Result tokens stored for a finished match.
const (
	ResultWhite     = "white"
	ResultBlack     = "black"
	ResultDraw      = "draw"
	ResultAbandoned = "abandoned"
)

// MatchResult is the archived summary of one game in the room.
type MatchResult struct {
	MatchID   string
	WhiteName string
	BlackName string
	Result    string
	Method    string
	FinalFEN  string
	Plies     int
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is zero when the timestamps are missing or inverted.
func (m MatchResult) Duration() time.Duration {
	d := m.EndedAt.Sub(m.StartedAt)
	if d < 0 || m.StartedAt.IsZero() {
		return 0
	}
	return d
}

// PGNResult maps Result onto the PGN result tag.
func (m MatchResult) PGNResult() string {
	switch m.Result {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}
