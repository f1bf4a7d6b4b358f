package chessmsg

import "strings"

// Seat values used on the wire.
const (
	SeatWhite = "white"
	SeatBlack = "black"
)

// JoinGame asks the server for a seat.
type JoinGame struct {
	Name string `json:"name,omitempty" validate:"max=32"`
}

// Move is a move proposal from a client and, with SAN filled in, the broadcast of an accepted move.
type Move struct {
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
	SAN       string `json:"san,omitempty"`
}

// UCI renders the move in long algebraic form, e.g. e7e8q.
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// Resign optionally carries the seat a client claims to resign for.
type Resign struct {
	Seat string `json:"seat,omitempty" validate:"omitempty,oneof=white black"`
}

// Role tells a client which seat it holds.
type Role struct {
	Seat string `json:"seat"`
}

// BoardState is the authoritative position snapshot.
type BoardState struct {
	FEN string `json:"fen"`
}

// Result accompanies terminal notices. Winner is empty for drawn or abandoned games;
// Seat names the side that resigned or left.
type Result struct {
	Winner string `json:"winner,omitempty"`
	Seat   string `json:"seat,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PlayerJoined is sent to both players once both seats are filled.
type PlayerJoined struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Rejection explains why a proposal was refused.
type Rejection struct {
	Move   *Move  `json:"move,omitempty"`
	Reason string `json:"reason"`
}
