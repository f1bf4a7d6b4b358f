package render

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var glyphs = map[nchess.Color]map[nchess.PieceType]string{
	nchess.White: {nchess.King: "♔", nchess.Queen: "♕", nchess.Rook: "♖", nchess.Bishop: "♗", nchess.Knight: "♘", nchess.Pawn: "♙"},
	nchess.Black: {nchess.King: "♚", nchess.Queen: "♛", nchess.Rook: "♜", nchess.Bishop: "♝", nchess.Knight: "♞", nchess.Pawn: "♟"},
}

// Text draws fen as a unicode grid with file and rank labels. Squares of the last
// move and the selected square are bracketed.
func Text(fen string, opts Options) (string, error) {
	board, err := boardOf(fen)
	if err != nil {
		return "", err
	}
	marked := map[nchess.Square]bool{}
	for _, s := range []string{opts.LastFrom, opts.LastTo, opts.Selected} {
		if sq, ok := optSquare(s); ok {
			marked[sq] = true
		}
	}

	var b strings.Builder
	if t := strings.TrimSpace(opts.Title); t != "" {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	files := fileLabels(opts.Flip)
	b.WriteString(files)
	for row := 0; row < 8; row++ {
		rank := squareAt(0, row, opts.Flip).Rank().String()
		b.WriteString(rank)
		b.WriteByte(' ')
		for col := 0; col < 8; col++ {
			sq := squareAt(col, row, opts.Flip)
			g := "·"
			if p := board.Piece(sq); p != nchess.NoPiece {
				g = glyphs[p.Color()][p.Type()]
			}
			if marked[sq] {
				b.WriteString("[" + g + "]")
			} else {
				b.WriteString(" " + g + " ")
			}
		}
		b.WriteByte(' ')
		b.WriteString(rank)
		b.WriteByte('\n')
	}
	b.WriteString(files)
	if t := strings.TrimSpace(opts.Turn); t != "" {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func fileLabels(flip bool) string {
	var b strings.Builder
	b.WriteString("  ")
	for col := 0; col < 8; col++ {
		b.WriteString(" " + squareAt(col, 0, flip).File().String() + " ")
	}
	b.WriteByte('\n')
	return b.String()
}
