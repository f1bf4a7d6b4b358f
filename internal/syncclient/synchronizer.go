// Package syncclient keeps a client's local view of the room in step with the
// server. The local position is a mirror for rendering and input affordances only;
// the server decides legality.
package syncclient

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/park285/chessroom/internal/msgcat"
	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/internal/render"
	"github.com/park285/chessroom/internal/rules"
	"github.com/park285/chessroom/pkg/chessmsg"
	"go.uber.org/zap"
)

// Sender writes one envelope to the server.
type Sender interface {
	Send(ctx context.Context, env chessmsg.Envelope) error
}

// Renderer redraws the board. It is called after every mirror change.
type Renderer interface {
	Render(fen string, opts render.Options)
}

// Notifier shows a message. Blocking notices must be acknowledged by the user
// before play continues (terminal outcomes).
type Notifier interface {
	Notify(text string, blocking bool)
}

// Prompter asks which piece a pawn promotes to. It returns one of q, r, b, n.
type Prompter interface {
	ChoosePromotion(prompt string) string
}

var ErrNotSelectable = errors.New("square does not hold one of your pieces")

type Options struct {
	Sender   Sender
	Renderer Renderer
	Notifier Notifier
	Prompter Prompter
	Catalog  *msgcat.Catalog
	Oracle   rules.Oracle
}

type Synchronizer struct {
	mu       sync.Mutex
	send     Sender
	renderer Renderer
	notifier Notifier
	prompter Prompter
	cat      *msgcat.Catalog
	rules    rules.Oracle

	pos      rules.Position
	seat     rules.Color
	white    string
	black    string
	selected string
	lastFrom string
	lastTo   string
}

func New(opts Options) (*Synchronizer, error) {
	if opts.Sender == nil {
		return nil, errors.New("syncclient: sender required")
	}
	s := &Synchronizer{
		send:     opts.Sender,
		renderer: opts.Renderer,
		notifier: opts.Notifier,
		prompter: opts.Prompter,
		cat:      opts.Catalog,
		rules:    opts.Oracle,
	}
	if s.rules == nil {
		s.rules = rules.NewStandard()
	}
	s.pos = s.rules.Start()
	return s, nil
}

// effects collected under the lock and performed after it is released.
type effects struct {
	render  bool
	notices []notice
}

type notice struct {
	text     string
	blocking bool
}

func (e *effects) say(text string, blocking bool) {
	e.notices = append(e.notices, notice{text: text, blocking: blocking})
}

// Handle applies one server message.
func (s *Synchronizer) Handle(env chessmsg.Envelope) {
	s.mu.Lock()
	fx := s.handle(env)
	s.mu.Unlock()
	s.perform(fx)
}

func (s *Synchronizer) handle(env chessmsg.Envelope) effects {
	var fx effects
	switch env.Type {
	case chessmsg.TypePlayerRole:
		var role chessmsg.Role
		_ = env.Decode(&role)
		s.seat = rules.Color(role.Seat)
		s.selected = ""
		fx.render = true
		fx.say(s.cat.Text("role."+role.Seat, nil, "You play "+role.Seat+"."), false)
	case chessmsg.TypeSpectatorRole:
		s.seat = ""
		s.selected = ""
		fx.render = true
		fx.say(s.cat.Text("role.spectator", nil, "You are watching."), false)
	case chessmsg.TypeBoardState:
		var bs chessmsg.BoardState
		if err := env.Decode(&bs); err != nil || strings.TrimSpace(bs.FEN) == "" {
			obslog.L().Warn("client_bad_board_state", zap.Error(err))
			return fx
		}
		if rules.Position(bs.FEN) != s.pos {
			s.selected = ""
		}
		s.pos = rules.Position(bs.FEN)
		if s.pos == s.rules.Start() {
			s.lastFrom, s.lastTo = "", ""
		}
		fx.render = true
	case chessmsg.TypeMove:
		var mv chessmsg.Move
		_ = env.Decode(&mv)
		res := s.rules.Apply(s.pos, rules.Move{From: mv.From, To: mv.To, Promotion: mv.Promotion})
		if !res.OK() {
			// 다음 boardState가 미러를 바로잡는다
			obslog.L().Warn("client_mirror_desync", zap.String("uci", mv.UCI()), zap.Error(res.Rejected))
			return fx
		}
		s.pos = res.Position
		s.lastFrom, s.lastTo = mv.From, mv.To
		s.selected = ""
		fx.render = true
		if res.Check && res.Terminal == rules.NotTerminal {
			fx.say(s.cat.Text("move.check", nil, "Check!"), false)
		}
	case chessmsg.TypeInvalidMove:
		var rej chessmsg.Rejection
		_ = env.Decode(&rej)
		shown := ""
		if rej.Move != nil {
			shown = rej.Move.UCI()
		}
		s.selected = ""
		fx.render = true
		fx.say(s.cat.Text("reject.move", map[string]any{"Move": shown}, "Invalid move."), false)
	case chessmsg.TypeInvalidTurn:
		s.selected = ""
		fx.render = true
		fx.say(s.cat.Text("reject.turn", nil, "It is not your turn."), false)
	case chessmsg.TypePlayerJoined:
		var pj chessmsg.PlayerJoined
		_ = env.Decode(&pj)
		s.white, s.black = pj.White, pj.Black
		fx.say(s.cat.Text("joined", map[string]any{"White": orSide(pj.White, "White"), "Black": orSide(pj.Black, "Black")}, "Both players are seated."), false)
	case chessmsg.TypeDrawOffered:
		fx.say(s.cat.Text("draw.offered", nil, "Your opponent offers a draw."), false)
	case chessmsg.TypeDrawDeclinedNotification:
		fx.say(s.cat.Text("draw.declined", nil, "Your draw offer was declined."), false)
	case chessmsg.TypeCheckmate, chessmsg.TypeStalemate, chessmsg.TypeResigned, chessmsg.TypeDraw, chessmsg.TypeOpponentLeft:
		var res chessmsg.Result
		_ = env.Decode(&res)
		s.pos = s.rules.Start()
		s.selected, s.lastFrom, s.lastTo = "", "", ""
		fx.render = true
		fx.say(s.terminalText(env.Type, res), true)
	default:
		obslog.L().Debug("client_unhandled_message", zap.String("type", string(env.Type)))
	}
	return fx
}

func (s *Synchronizer) terminalText(t chessmsg.Type, res chessmsg.Result) string {
	switch t {
	case chessmsg.TypeCheckmate:
		return s.cat.Text("end.checkmate", map[string]any{"Winner": sideName(res.Winner)}, "Checkmate!")
	case chessmsg.TypeStalemate:
		return s.cat.Text("end.stalemate", nil, "Stalemate!")
	case chessmsg.TypeResigned:
		return s.cat.Text("end.resigned", map[string]any{"Player": sideName(res.Seat)}, "A player resigned.")
	case chessmsg.TypeDraw:
		return s.cat.Text("end.draw", nil, "The game is a draw.")
	default:
		return s.cat.Text("end.opponent_left", nil, "Your opponent left the game.")
	}
}

// perform renders first so a blocking notice is shown over the reset board.
func (s *Synchronizer) perform(fx effects) {
	if fx.render && s.renderer != nil {
		fen, opts := s.View()
		s.renderer.Render(fen, opts)
	}
	if s.notifier == nil {
		return
	}
	for _, n := range fx.notices {
		s.notifier.Notify(n.text, n.blocking)
	}
}

// View returns the mirror position and how to draw it for this client.
func (s *Synchronizer) View() (string, render.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := render.ForSeat(string(s.seat))
	opts.LastFrom, opts.LastTo, opts.Selected = s.lastFrom, s.lastTo, s.selected
	if s.white != "" || s.black != "" {
		opts.Title = orSide(s.white, "White") + " vs " + orSide(s.black, "Black")
	}
	if turn, err := s.rules.Turn(s.pos); err == nil {
		opts.Turn = string(turn) + " to move"
	}
	return string(s.pos), opts
}

// Seat is white, black or empty for observers.
func (s *Synchronizer) Seat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.seat)
}

func (s *Synchronizer) Position() rules.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Selectable reports whether sq holds one of this client's pieces.
func (s *Synchronizer) Selectable(sq string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectable(sq)
}

func (s *Synchronizer) selectable(sq string) bool {
	if s.seat == "" {
		return false
	}
	p, ok := s.rules.PieceAt(s.pos, sq)
	return ok && p.Color == s.seat
}

// Click implements click-click input: the first click picks up an own piece, the
// second sends the move. Clicking another own piece switches the selection.
func (s *Synchronizer) Click(ctx context.Context, sq string) error {
	sq = strings.ToLower(strings.TrimSpace(sq))
	s.mu.Lock()
	from := s.selected
	switch {
	case from == "" && s.selectable(sq):
		s.selected = sq
	case from == "":
		s.mu.Unlock()
		return ErrNotSelectable
	case from == sq:
		s.selected = ""
	case s.selectable(sq):
		s.selected = sq
	default:
		s.mu.Unlock()
		return s.Drag(ctx, from, sq)
	}
	s.mu.Unlock()
	s.perform(effects{render: true})
	return nil
}

// Drag sends a move from a drag-release. The mirror is not changed; the server's
// broadcast moves the piece.
func (s *Synchronizer) Drag(ctx context.Context, from, to string) error {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	s.mu.Lock()
	if !s.selectable(from) {
		s.mu.Unlock()
		return ErrNotSelectable
	}
	s.selected = ""
	p, _ := s.rules.PieceAt(s.pos, from)
	s.mu.Unlock()
	if from == to {
		s.perform(effects{render: true})
		return nil
	}

	mv := chessmsg.Move{From: from, To: to}
	if rules.NeedsPromotion(p, to) {
		mv.Promotion = s.choosePromotion()
	}
	return s.send.Send(ctx, chessmsg.MustNew(chessmsg.TypeMove, mv))
}

func (s *Synchronizer) choosePromotion() string {
	if s.prompter == nil {
		return string(rules.Queen)
	}
	choice := strings.ToLower(strings.TrimSpace(s.prompter.ChoosePromotion(s.cat.Text("prompt.promotion", nil, "Promote to (q, r, b, n)?"))))
	if len(choice) == 1 && strings.Contains("qrbn", choice) {
		return choice
	}
	return string(rules.Queen)
}

func (s *Synchronizer) Join(ctx context.Context, name string) error {
	return s.send.Send(ctx, chessmsg.MustNew(chessmsg.TypeJoinGame, chessmsg.JoinGame{Name: name}))
}

// Resign declares the client's own seat; the server resolves it independently.
func (s *Synchronizer) Resign(ctx context.Context) error {
	return s.send.Send(ctx, chessmsg.MustNew(chessmsg.TypeResign, chessmsg.Resign{Seat: s.Seat()}))
}

func (s *Synchronizer) OfferDraw(ctx context.Context) error {
	return s.send.Send(ctx, chessmsg.MustNew(chessmsg.TypeOfferDraw, nil))
}

func (s *Synchronizer) RespondDraw(ctx context.Context, accept bool) error {
	t := chessmsg.TypeDrawDeclined
	if accept {
		t = chessmsg.TypeDrawAccepted
	}
	return s.send.Send(ctx, chessmsg.MustNew(t, nil))
}

func sideName(seat string) string {
	switch seat {
	case chessmsg.SeatWhite:
		return "White"
	case chessmsg.SeatBlack:
		return "Black"
	}
	return "Someone"
}

func orSide(name, side string) string {
	if strings.TrimSpace(name) == "" {
		return side
	}
	return name
}
