// Package rules is the move-legality oracle. Positions are FEN strings; the
// oracle never keeps state between calls.
package rules

import (
	"errors"
	"strings"
)

// Color is the side to move or the owner of a piece.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Position is an opaque FEN snapshot.
type Position string

// StartPosition is the standard initial setup.
const StartPosition Position = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// PieceKind uses the lowercase FEN letter of the piece.
type PieceKind byte

const (
	Pawn   PieceKind = 'p'
	Knight PieceKind = 'n'
	Bishop PieceKind = 'b'
	Rook   PieceKind = 'r'
	Queen  PieceKind = 'q'
	King   PieceKind = 'k'
)

type Piece struct {
	Color Color
	Kind  PieceKind
}

// Move is a proposal in square coordinates. Promotion is one of q, r, b, n or empty.
type Move struct {
	From      string
	To        string
	Promotion string
}

// UCI renders the move as e2e4 / e7e8q.
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// Terminal classifies the position reached by an accepted move.
type Terminal int

const (
	NotTerminal Terminal = iota
	Checkmate
	Stalemate
	// Draw covers automatic draws other than stalemate that a single position can
	// show: insufficient material and the 75-move rule. Repetition needs the game's
	// history, which the oracle does not keep; the session counts it.
	Draw
)

func (t Terminal) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Draw:
		return "draw"
	default:
		return "none"
	}
}

// Result is the outcome of Apply. Exactly one of Rejected or the position fields is meaningful.
type Result struct {
	Position Position
	SAN      string
	// Turn is the side to move in Position.
	Turn     Color
	Check    bool
	Terminal Terminal
	// Method is the lowercase termination method reported by the chess library, e.g. "insufficientmaterial".
	Method   string
	Rejected error
}

func (r Result) OK() bool { return r.Rejected == nil }

var (
	ErrMalformedMove = errors.New("malformed move")
	ErrIllegalMove   = errors.New("illegal move")
	ErrBadPosition   = errors.New("bad position")
	ErrOracleFailure = errors.New("rules oracle failure")
)

// Oracle answers legality questions about positions it does not own.
type Oracle interface {
	Start() Position
	Turn(pos Position) (Color, error)
	PieceAt(pos Position, square string) (Piece, bool)
	Apply(pos Position, mv Move) Result
}

// NeedsPromotion reports whether moving p to square lands a pawn on its last rank.
func NeedsPromotion(p Piece, to string) bool {
	if p.Kind != Pawn || len(to) != 2 {
		return false
	}
	switch p.Color {
	case White:
		return to[1] == '8'
	case Black:
		return to[1] == '1'
	}
	return false
}
