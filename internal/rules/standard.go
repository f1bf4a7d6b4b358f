package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Standard implements Oracle with the corentings chess library.
type Standard struct {
	start Position
}

func NewStandard() *Standard { return &Standard{start: StartPosition} }

// NewStandardFrom uses fen as the start (and reset) position.
func NewStandardFrom(fen string) (*Standard, error) {
	fen = strings.TrimSpace(fen)
	if _, err := load(Position(fen)); err != nil {
		return nil, err
	}
	return &Standard{start: Position(fen)}, nil
}

func (o *Standard) Start() Position { return o.start }

func (o *Standard) Turn(pos Position) (Color, error) {
	game, err := load(pos)
	if err != nil {
		return "", err
	}
	return colorOf(game.Position().Turn()), nil
}

func (o *Standard) PieceAt(pos Position, square string) (Piece, bool) {
	sq, err := ParseSquare(square)
	if err != nil {
		return Piece{}, false
	}
	game, err := load(pos)
	if err != nil {
		return Piece{}, false
	}
	p := game.Position().Board().Piece(sq)
	if p == nchess.NoPiece {
		return Piece{}, false
	}
	return Piece{Color: colorOf(p.Color()), Kind: kindOf(p.Type())}, true
}

// Apply validates mv against pos and returns the successor position. Library panics
// are folded into a rejection.
func (o *Standard) Apply(pos Position, mv Move) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Position: pos, Rejected: fmt.Errorf("%w: %v", ErrOracleFailure, r)}
		}
	}()

	from, err := ParseSquare(mv.From)
	if err != nil {
		return Result{Position: pos, Rejected: err}
	}
	to, err := ParseSquare(mv.To)
	if err != nil {
		return Result{Position: pos, Rejected: err}
	}
	promo := strings.ToLower(strings.TrimSpace(mv.Promotion))
	if len(promo) > 1 || (promo != "" && !strings.Contains("qrbn", promo)) {
		return Result{Position: pos, Rejected: fmt.Errorf("%w: promotion %q", ErrMalformedMove, mv.Promotion)}
	}

	game, err := load(pos)
	if err != nil {
		return Result{Position: pos, Rejected: err}
	}
	before := game.Position()
	uci := from.String() + to.String() + promo

	legal := false
	for _, cand := range game.ValidMoves() {
		if cand.String() == uci {
			legal = true
			break
		}
	}
	if !legal {
		return Result{Position: pos, Rejected: fmt.Errorf("%w: %s", ErrIllegalMove, uci)}
	}
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Result{Position: pos, Rejected: fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)}
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return Result{Position: pos, Rejected: fmt.Errorf("%w: move not recorded", ErrOracleFailure)}
	}
	last := moves[len(moves)-1]

	res = Result{
		Position: Position(game.FEN()),
		SAN:      nchess.AlgebraicNotation{}.Encode(before, last),
		Turn:     colorOf(game.Position().Turn()),
		Check:    last.HasTag(nchess.Check),
	}
	switch game.Method() {
	case nchess.Checkmate:
		res.Terminal = Checkmate
	case nchess.Stalemate:
		res.Terminal = Stalemate
	default:
		if game.Outcome() == nchess.Draw {
			res.Terminal = Draw
		}
	}
	if res.Terminal != NotTerminal {
		res.Method = strings.ToLower(game.Method().String())
	}
	return res
}

// ParseSquare accepts algebraic squares a1..h8 in either case.
func ParseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		var none nchess.Square
		return none, fmt.Errorf("%w: square %q", ErrMalformedMove, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

func load(pos Position) (*nchess.Game, error) {
	opt, err := nchess.FEN(string(pos))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func colorOf(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

func kindOf(t nchess.PieceType) PieceKind {
	switch t {
	case nchess.Knight:
		return Knight
	case nchess.Bishop:
		return Bishop
	case nchess.Rook:
		return Rook
	case nchess.Queen:
		return Queen
	case nchess.King:
		return King
	default:
		return Pawn
	}
}
