// Package session is the authoritative state machine for the room's single game.
package session

import (
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/park285/chessroom/internal/domain"
    "github.com/park285/chessroom/internal/obslog"
    "github.com/park285/chessroom/internal/relay"
    "github.com/park285/chessroom/internal/rules"
    "github.com/park285/chessroom/internal/seat"
    "github.com/park285/chessroom/pkg/chessmsg"
    "go.uber.org/zap"
)

type Options struct {
    Oracle     rules.Oracle
    Seats      *seat.Registry
    Dispatcher Dispatcher
    Recorder   Recorder
    // TrustDeclaredResignSeat takes the resigning side from the client message.
    TrustDeclaredResignSeat bool
    Now        func() time.Time
    NewMatchID func() string
}

// Session serialises every operation behind one mutex. Events produced by an
// operation are dispatched before the lock is released, so all recipients observe
// operations in the same order.
type Session struct {
    mu    sync.Mutex
    rules rules.Oracle
    seats *seat.Registry
    out   Dispatcher
    rec   Recorder
    trust bool
    now   func() time.Time
    newID func() string

    pos       rules.Position
    status    Status
    drawOffer seat.Seat
    matchID   string
    startedAt time.Time
    plies     int
    // seen counts occurrences of each position, clocks excluded, for fivefold repetition.
    seen      map[string]int
    last      *domain.MatchResult
}

const fivefold = 5

func New(opts Options) (*Session, error) {
    if opts.Oracle == nil { return nil, fmt.Errorf("session: rules oracle required") }
    s := &Session{
        rules: opts.Oracle,
        seats: opts.Seats,
        out:   opts.Dispatcher,
        rec:   opts.Recorder,
        trust: opts.TrustDeclaredResignSeat,
        now:   opts.Now,
        newID: opts.NewMatchID,
    }
    if s.seats == nil { s.seats = seat.NewRegistry() }
    if s.out == nil { s.out = nopDispatcher{} }
    if s.now == nil { s.now = time.Now }
    if s.newID == nil { s.newID = uuid.NewString }
    s.Init()
    return s, nil
}

// Init puts the session at the oracle's start position without broadcasting.
func (s *Session) Init() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.init()
}

func (s *Session) init() {
    s.pos = s.rules.Start()
    s.status = StatusInProgress
    s.drawOffer = seat.Observer
    s.matchID = s.newID()
    s.startedAt = s.now()
    s.plies = 0
    s.seen = map[string]int{repetitionKey(s.pos): 1}
}

// repetitionKey drops the halfmove and fullmove clocks from a FEN.
func repetitionKey(pos rules.Position) string {
    f := strings.Fields(string(pos))
    if len(f) > 4 { f = f[:4] }
    return strings.Join(f, " ")
}

// Reset starts a fresh game and broadcasts the start position.
func (s *Session) Reset() []relay.Event {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.emit(s.reset())
}

func (s *Session) reset() []relay.Event {
    prev := s.matchID
    s.init()
    obslog.L().Info("room_reset", zap.String("prev_match_id", prev), zap.String("match_id", s.matchID))
    return []relay.Event{relay.Global(boardState(s.pos))}
}

func (s *Session) emit(evs []relay.Event) []relay.Event {
    if len(evs) > 0 { s.out.Dispatch(evs...) }
    return evs
}

// Seats exposes the registry for read-only queries.
func (s *Session) Seats() *seat.Registry { return s.seats }

// Connect attaches a connection as an observer. It receives global broadcasts from now on.
func (s *Session) Connect(connID string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.seats.Attach(connID)
    obslog.L().Debug("room_connect", zap.String("conn_id", connID))
}

// Join assigns a seat and tells the connection its role and the current position.
func (s *Session) Join(connID, name string) []relay.Event {
    s.mu.Lock()
    defer s.mu.Unlock()

    st, filled, err := s.seats.AssignSeat(connID, name)
    if errors.Is(err, seat.ErrUnknownConnection) {
        s.seats.Attach(connID)
        st, filled, _ = s.seats.AssignSeat(connID, name)
    }
    evs := []relay.Event{
        roleEvent(connID, st),
        relay.Targeted(connID, boardState(s.pos)),
    }
    if filled {
        white, black := s.seats.Names()
        joined := chessmsg.MustNew(chessmsg.TypePlayerJoined, chessmsg.PlayerJoined{White: white, Black: black})
        for _, side := range []seat.Seat{seat.White, seat.Black} {
            if c, ok := s.seats.Holder(side); ok {
                evs = append(evs, relay.Targeted(c.ID, joined))
            }
        }
    }
    obslog.L().Info("room_join",
        zap.String("conn_id", connID),
        zap.String("seat", st.String()),
        zap.Bool("both_seated", filled),
    )
    return s.emit(evs)
}

// Leave detaches a connection. A seated player leaving abandons the game.
func (s *Session) Leave(connID string) []relay.Event {
    s.mu.Lock()
    defer s.mu.Unlock()
    // 좌석을 비우기 전에 이름을 잡아 둔다 (기록에 남김)
    white, black := s.seats.Names()
    vacated, seated := s.seats.ReleaseSeat(connID)
    if _, ok := s.seats.Detach(connID); !ok { return nil }
    obslog.L().Info("room_leave", zap.String("conn_id", connID), zap.String("seat", vacated.String()))
    if !seated { return nil }
    return s.emit(s.onSeatVacated(vacated, white, black))
}

func (s *Session) onSeatVacated(vacated seat.Seat, white, black string) []relay.Event {
    evs := []relay.Event{result(chessmsg.TypeOpponentLeft, chessmsg.Result{Seat: string(vacated), Reason: "abandoned"})}
    return append(evs, s.finishWith(StatusAbandoned, domain.ResultAbandoned, "abandoned", white, black)...)
}

// ProposeMove runs the turn gate, fills in queen promotion and asks the oracle.
func (s *Session) ProposeMove(connID string, mv chessmsg.Move) ([]relay.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    st := s.seats.SeatOf(connID)
    turn, err := s.turn()
    if err != nil || !st.Seated() || rules.Color(st) != turn {
        obslog.L().Info("room_move_out_of_turn", zap.String("conn_id", connID), zap.String("seat", st.String()), zap.String("turn", string(turn)))
        return s.emit([]relay.Event{rejection(connID, chessmsg.TypeInvalidTurn, mv, "not your turn")}), ErrInvalidTurn
    }
    if verr := chessmsg.Validate(mv); verr != nil {
        return s.emit([]relay.Event{rejection(connID, chessmsg.TypeInvalidMove, mv, "malformed move")}), fmt.Errorf("%w: %v", ErrIllegalMove, verr)
    }

    proposal := rules.Move{
        From:      strings.ToLower(mv.From),
        To:        strings.ToLower(mv.To),
        Promotion: strings.ToLower(mv.Promotion),
    }
    if proposal.Promotion == "" {
        if p, ok := s.pieceAt(proposal.From); ok && rules.NeedsPromotion(p, proposal.To) {
            proposal.Promotion = string(rules.Queen)
        }
    }

    res := s.apply(proposal)
    if !res.OK() {
        obslog.L().Info("room_move_rejected", zap.String("conn_id", connID), zap.String("uci", proposal.UCI()), zap.Error(res.Rejected))
        return s.emit([]relay.Event{rejection(connID, chessmsg.TypeInvalidMove, mv, res.Rejected.Error())}), fmt.Errorf("%w: %v", ErrIllegalMove, res.Rejected)
    }

    s.pos = res.Position
    s.plies++
    s.seen[repetitionKey(s.pos)]++
    if res.Terminal == rules.NotTerminal && s.seen[repetitionKey(s.pos)] >= fivefold {
        res.Terminal, res.Method = rules.Draw, "fivefoldrepetition"
    }
    played := chessmsg.Move{From: proposal.From, To: proposal.To, Promotion: proposal.Promotion, SAN: res.SAN}
    evs := []relay.Event{
        relay.Global(chessmsg.MustNew(chessmsg.TypeMove, played)),
        relay.Global(boardState(s.pos)),
    }
    obslog.L().Info("room_move",
        zap.String("match_id", s.matchID),
        zap.String("conn_id", connID),
        zap.String("uci", proposal.UCI()),
        zap.String("san", res.SAN),
        zap.Int("ply", s.plies),
        zap.String("terminal", res.Terminal.String()),
    )

    switch res.Terminal {
    case rules.Checkmate:
        // 둘 차례인 쪽이 메이트 당한 쪽
        winner := seat.Seat(res.Turn).Opponent()
        evs = append(evs, result(chessmsg.TypeCheckmate, chessmsg.Result{Winner: string(winner), Reason: "checkmate"}))
        evs = append(evs, s.finish(StatusCheckmate, string(winner), "checkmate")...)
    case rules.Stalemate:
        evs = append(evs, result(chessmsg.TypeStalemate, chessmsg.Result{Reason: "stalemate"}))
        evs = append(evs, s.finish(StatusStalemate, domain.ResultDraw, "stalemate")...)
    case rules.Draw:
        evs = append(evs, result(chessmsg.TypeDraw, chessmsg.Result{Reason: res.Method}))
        evs = append(evs, s.finish(StatusDraw, domain.ResultDraw, res.Method)...)
    }
    return s.emit(evs), nil
}

// Resign ends the game in favour of the resigning seat's opponent. The seat comes
// from the registry unless the session trusts the declared seat.
func (s *Session) Resign(connID, declared string) ([]relay.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    st := s.seats.SeatOf(connID)
    resigning := st
    d := seat.Seat(strings.ToLower(strings.TrimSpace(declared)))
    if s.trust && d.Seated() {
        resigning = d
    } else if d != seat.Observer && d != st {
        obslog.L().Warn("room_resign_seat_mismatch", zap.String("conn_id", connID), zap.String("declared", string(d)), zap.String("seat", st.String()))
    }
    if !resigning.Seated() { return nil, ErrUnseatedAction }

    winner := resigning.Opponent()
    obslog.L().Info("room_resign", zap.String("match_id", s.matchID), zap.String("seat", string(resigning)))
    evs := []relay.Event{result(chessmsg.TypeResigned, chessmsg.Result{Winner: string(winner), Seat: string(resigning), Reason: "resignation"})}
    evs = append(evs, s.finish(StatusResigned, string(winner), "resignation")...)
    return s.emit(evs), nil
}

// OfferDraw notifies the opponent only. A later offer replaces an earlier one.
func (s *Session) OfferDraw(connID string) ([]relay.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    st := s.seats.SeatOf(connID)
    if !st.Seated() { return nil, ErrUnseatedAction }
    opp, ok := s.seats.Holder(st.Opponent())
    if !ok { return nil, ErrNoOpponent }
    s.drawOffer = st
    obslog.L().Info("room_draw_offer", zap.String("match_id", s.matchID), zap.String("seat", string(st)))
    return s.emit([]relay.Event{relay.Targeted(opp.ID, chessmsg.MustNew(chessmsg.TypeDrawOffered, nil))}), nil
}

// RespondToDraw answers an outstanding offer. Only the offerer's opponent may answer.
func (s *Session) RespondToDraw(connID string, accept bool) ([]relay.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    st := s.seats.SeatOf(connID)
    if !st.Seated() { return nil, ErrUnseatedAction }
    if s.drawOffer == seat.Observer || s.drawOffer != st.Opponent() { return nil, ErrNoDrawOffer }
    offerer := s.drawOffer
    s.drawOffer = seat.Observer
    obslog.L().Info("room_draw_response", zap.String("match_id", s.matchID), zap.String("seat", string(st)), zap.Bool("accept", accept))

    if accept {
        evs := []relay.Event{result(chessmsg.TypeDraw, chessmsg.Result{Reason: "agreement"})}
        evs = append(evs, s.finish(StatusDraw, domain.ResultDraw, "agreement")...)
        return s.emit(evs), nil
    }
    c, ok := s.seats.Holder(offerer)
    if !ok { return nil, nil }
    return s.emit([]relay.Event{relay.Targeted(c.ID, chessmsg.MustNew(chessmsg.TypeDrawDeclinedNotification, nil))}), nil
}

// finish archives the game and resets. Abandoned games with no moves are not archived.
func (s *Session) finish(status Status, winner, method string) []relay.Event {
    white, black := s.seats.Names()
    return s.finishWith(status, winner, method, white, black)
}

func (s *Session) finishWith(status Status, winner, method, white, black string) []relay.Event {
    s.status = status
    rec := domain.MatchResult{
        MatchID:   s.matchID,
        WhiteName: white,
        BlackName: black,
        Result:    winner,
        Method:    method,
        FinalFEN:  string(s.pos),
        Plies:     s.plies,
        StartedAt: s.startedAt,
        EndedAt:   s.now(),
    }
    s.last = &rec
    obslog.L().Info("room_game_end",
        zap.String("match_id", rec.MatchID),
        zap.String("status", string(status)),
        zap.String("result", rec.Result),
        zap.String("method", method),
        zap.Int("plies", rec.Plies),
    )
    if s.rec != nil && (status != StatusAbandoned || s.plies > 0) {
        s.rec.Record(rec)
    }
    return s.reset()
}

func (s *Session) apply(mv rules.Move) (res rules.Result) {
    defer func() {
        if r := recover(); r != nil {
            obslog.L().Error("room_oracle_panic", zap.Any("panic", r), zap.String("uci", mv.UCI()))
            res = rules.Result{Position: s.pos, Rejected: fmt.Errorf("%w: %v", rules.ErrOracleFailure, r)}
        }
    }()
    return s.rules.Apply(s.pos, mv)
}

func (s *Session) turn() (c rules.Color, err error) {
    defer func() {
        if r := recover(); r != nil { err = fmt.Errorf("%w: %v", rules.ErrOracleFailure, r) }
    }()
    return s.rules.Turn(s.pos)
}

func (s *Session) pieceAt(square string) (p rules.Piece, ok bool) {
    defer func() {
        if r := recover(); r != nil { p, ok = rules.Piece{}, false }
    }()
    return s.rules.PieceAt(s.pos, square)
}

// Snapshot is a consistent read of the session for HTTP handlers.
func (s *Session) Snapshot() chessmsg.RoomState {
    s.mu.Lock()
    defer s.mu.Unlock()
    turn, _ := s.turn()
    white, black := s.seats.Names()
    _, hasWhite := s.seats.Holder(seat.White)
    _, hasBlack := s.seats.Holder(seat.Black)
    if hasWhite && white == "" { white = "White" }
    if hasBlack && black == "" { black = "Black" }
    st := chessmsg.RoomState{
        MatchID:     s.matchID,
        FEN:         string(s.pos),
        Turn:        string(turn),
        Status:      string(s.status),
        White:       white,
        Black:       black,
        Observers:   len(s.seats.Observers()),
        DrawOfferBy: string(s.drawOffer),
        StartedAt:   s.startedAt,
    }
    if s.last != nil {
        l := s.last
        st.LastResult = &chessmsg.ResultRecord{
            MatchID: l.MatchID, White: l.WhiteName, Black: l.BlackName,
            Result: l.Result, Method: l.Method, FinalFEN: l.FinalFEN, Plies: l.Plies,
            StartedAt: l.StartedAt, EndedAt: l.EndedAt,
        }
    }
    return st
}

// Position returns the authoritative FEN.
func (s *Session) Position() rules.Position {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.pos
}
