// Package render draws a position for humans: a PNG for HTTP viewers and a
// unicode grid for the terminal client. Both support viewing from Black's side.
package render

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chessroom/internal/rules"
)

// Options controls orientation and overlays. Squares are algebraic ("e4").
type Options struct {
	// Flip draws rank 1 at the top, i.e. from Black's side.
	Flip bool
	// LastFrom and LastTo mark the previous move.
	LastFrom string
	LastTo   string
	// Selected marks a square the user picked up.
	Selected string
	Title    string
	Turn     string
}

// ForSeat returns Options oriented for the given seat ("black" flips).
func ForSeat(seat string) Options {
	return Options{Flip: strings.EqualFold(strings.TrimSpace(seat), "black")}
}

func boardOf(fen string) (*nchess.Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rules.ErrBadPosition, err)
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

// cell maps a square to its (col,row) on screen, row 0 at the top.
func cell(sq nchess.Square, flip bool) (col, row int) {
	file := int(sq.File())
	rank := int(sq.Rank())
	if flip {
		return 7 - file, rank
	}
	return file, 7 - rank
}

// squareAt is the inverse of cell.
func squareAt(col, row int, flip bool) nchess.Square {
	if flip {
		return nchess.NewSquare(nchess.File(7-col), nchess.Rank(row))
	}
	return nchess.NewSquare(nchess.File(col), nchess.Rank(7-row))
}

func optSquare(s string) (nchess.Square, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	sq, err := rules.ParseSquare(s)
	if err != nil {
		return 0, false
	}
	return sq, true
}
