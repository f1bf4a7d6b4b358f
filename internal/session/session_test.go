package session

import (
    "errors"
    "fmt"
    "strings"
    "sync"
    "testing"

    "github.com/park285/chessroom/internal/domain"
    "github.com/park285/chessroom/internal/relay"
    "github.com/park285/chessroom/internal/rules"
    "github.com/park285/chessroom/internal/seat"
    "github.com/park285/chessroom/pkg/chessmsg"
)

type recordingDispatcher struct {
    mu     sync.Mutex
    events []relay.Event
}

func (d *recordingDispatcher) Dispatch(evs ...relay.Event) {
    d.mu.Lock()
    d.events = append(d.events, evs...)
    d.mu.Unlock()
}

type memRecorder struct {
    mu      sync.Mutex
    results []domain.MatchResult
}

func (m *memRecorder) Record(r domain.MatchResult) {
    m.mu.Lock()
    m.results = append(m.results, r)
    m.mu.Unlock()
}

type panicOracle struct{ rules.Oracle }

func (panicOracle) Apply(rules.Position, rules.Move) rules.Result { panic("engine exploded") }

type fixture struct {
    s   *Session
    out *recordingDispatcher
    rec *memRecorder
}

func newFixture(t *testing.T, oracle rules.Oracle, trust bool) *fixture {
    t.Helper()
    if oracle == nil { oracle = rules.NewStandard() }
    out := &recordingDispatcher{}
    rec := &memRecorder{}
    n := 0
    s, err := New(Options{
        Oracle:                  oracle,
        Dispatcher:              out,
        Recorder:                rec,
        TrustDeclaredResignSeat: trust,
        NewMatchID:              func() string { n++; return fmt.Sprintf("match-%d", n) },
    })
    if err != nil { t.Fatalf("New: %v", err) }
    return &fixture{s: s, out: out, rec: rec}
}

// seatPlayers connects and joins the ids in order: white, black, then observers.
func (f *fixture) seatPlayers(ids ...string) {
    for _, id := range ids {
        f.s.Connect(id)
        f.s.Join(id, strings.ToUpper(id))
    }
}

func (f *fixture) play(t *testing.T, moves ...string) {
    t.Helper()
    for i, u := range moves {
        conn := "w"
        if i%2 == 1 { conn = "b" }
        if _, err := f.s.ProposeMove(conn, chessmsg.Move{From: u[:2], To: u[2:4], Promotion: u[4:]}); err != nil {
            t.Fatalf("move %s: %v", u, err)
        }
    }
}

func typesOf(evs []relay.Event) []chessmsg.Type {
    out := make([]chessmsg.Type, 0, len(evs))
    for _, e := range evs { out = append(out, e.Message.Type) }
    return out
}

func sameTypes(got []chessmsg.Type, want ...chessmsg.Type) bool {
    if len(got) != len(want) { return false }
    for i := range got {
        if got[i] != want[i] { return false }
    }
    return true
}

func decode[T any](t *testing.T, e relay.Event) T {
    t.Helper()
    var v T
    if err := e.Message.Decode(&v); err != nil { t.Fatalf("decode %s: %v", e.Message.Type, err) }
    return v
}

func TestJoinAssignsWhiteBlackThenObserver(t *testing.T) {
    f := newFixture(t, nil, false)
    for _, id := range []string{"w", "b", "o"} { f.s.Connect(id) }

    evs := f.s.Join("w", "alice")
    if !sameTypes(typesOf(evs), chessmsg.TypePlayerRole, chessmsg.TypeBoardState) {
        t.Fatalf("white join events: %v", typesOf(evs))
    }
    if r := decode[chessmsg.Role](t, evs[0]); r.Seat != "white" || evs[0].Target != "w" {
        t.Fatalf("white role: %+v target=%s", r, evs[0].Target)
    }

    evs = f.s.Join("b", "bob")
    if !sameTypes(typesOf(evs), chessmsg.TypePlayerRole, chessmsg.TypeBoardState, chessmsg.TypePlayerJoined, chessmsg.TypePlayerJoined) {
        t.Fatalf("black join events: %v", typesOf(evs))
    }
    pj := decode[chessmsg.PlayerJoined](t, evs[2])
    if pj.White != "alice" || pj.Black != "bob" {
        t.Fatalf("playerJoined=%+v", pj)
    }
    if evs[2].Target != "w" || evs[3].Target != "b" {
        t.Fatalf("playerJoined targets %s,%s", evs[2].Target, evs[3].Target)
    }

    evs = f.s.Join("o", "")
    if !sameTypes(typesOf(evs), chessmsg.TypeSpectatorRole, chessmsg.TypeBoardState) {
        t.Fatalf("observer join events: %v", typesOf(evs))
    }
    for _, e := range f.out.events {
        if e.IsGlobal() { t.Fatalf("joins must not broadcast, got global %s", e.Message.Type) }
    }
}

func TestOutOfTurnLeavesPositionUntouched(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b", "o")
    before := f.s.Position()

    for _, conn := range []string{"b", "o", "stranger"} {
        evs, err := f.s.ProposeMove(conn, chessmsg.Move{From: "e7", To: "e5"})
        if !errors.Is(err, ErrInvalidTurn) { t.Fatalf("%s: expected ErrInvalidTurn, got %v", conn, err) }
        if len(evs) != 1 || evs[0].Target != conn || evs[0].Message.Type != chessmsg.TypeInvalidTurn {
            t.Fatalf("%s: expected one targeted invalidTurn, got %+v", conn, evs)
        }
    }
    if f.s.Position() != before { t.Fatalf("position changed after rejected proposals") }
}

func TestWhiteMayMoveWithBlackVacant(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w")

    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "e2", To: "e4"})
    if err != nil { t.Fatalf("e2e4: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if !evs[0].IsGlobal() || !evs[1].IsGlobal() { t.Fatalf("move and snapshot must be global") }
    if mv := decode[chessmsg.Move](t, evs[0]); mv.SAN != "e4" { t.Fatalf("san=%q", mv.SAN) }
    if bs := decode[chessmsg.BoardState](t, evs[1]); !strings.Contains(bs.FEN, " b ") {
        t.Fatalf("black should be to move: %s", bs.FEN)
    }
    if _, err := f.s.ProposeMove("w", chessmsg.Move{From: "d2", To: "d4"}); !errors.Is(err, ErrInvalidTurn) {
        t.Fatalf("white moving twice should be out of turn, got %v", err)
    }
}

func TestIllegalMoveIsTargetedOnly(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    before := f.s.Position()

    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "e2", To: "e5"})
    if !errors.Is(err, ErrIllegalMove) { t.Fatalf("expected ErrIllegalMove, got %v", err) }
    if len(evs) != 1 || evs[0].Target != "w" || evs[0].Message.Type != chessmsg.TypeInvalidMove {
        t.Fatalf("expected one targeted invalidMove, got %+v", evs)
    }
    rej := decode[chessmsg.Rejection](t, evs[0])
    if rej.Move == nil || rej.Move.From != "e2" || rej.Move.To != "e5" {
        t.Fatalf("rejection should echo the move: %+v", rej)
    }
    if f.s.Position() != before { t.Fatalf("position changed") }

    evs, err = f.s.ProposeMove("w", chessmsg.Move{From: "e2", To: "e44"})
    if !errors.Is(err, ErrIllegalMove) || len(evs) != 1 || evs[0].Message.Type != chessmsg.TypeInvalidMove {
        t.Fatalf("malformed move: err=%v evs=%v", err, typesOf(evs))
    }
}

func TestPawnReachingLastRankBecomesQueen(t *testing.T) {
    o, err := rules.NewStandardFrom("8/P7/8/8/8/8/8/k6K w - - 0 1")
    if err != nil { t.Fatalf("oracle: %v", err) }
    f := newFixture(t, o, false)
    f.seatPlayers("w", "b")

    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "a7", To: "a8"})
    if err != nil { t.Fatalf("a7a8: %v", err) }
    if mv := decode[chessmsg.Move](t, evs[0]); mv.Promotion != "q" {
        t.Fatalf("expected auto queen, got %+v", mv)
    }
    if p, ok := o.PieceAt(f.s.Position(), "a8"); !ok || p.Kind != rules.Queen {
        t.Fatalf("a8 holds %+v", p)
    }
}

func TestExplicitUnderpromotionIsKept(t *testing.T) {
    // the rook keeps mating material on the board after the knight appears
    o, err := rules.NewStandardFrom("8/P7/8/8/8/8/7R/k6K w - - 0 1")
    if err != nil { t.Fatalf("oracle: %v", err) }
    f := newFixture(t, o, false)
    f.seatPlayers("w", "b")
    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "a7", To: "a8", Promotion: "n"})
    if err != nil { t.Fatalf("a7a8n: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if mv := decode[chessmsg.Move](t, evs[0]); mv.Promotion != "n" {
        t.Fatalf("broadcast move %+v", mv)
    }
    bs := decode[chessmsg.BoardState](t, evs[1])
    if p, _ := o.PieceAt(rules.Position(bs.FEN), "a8"); p.Kind != rules.Knight || p.Color != rules.White {
        t.Fatalf("expected white knight in snapshot, got %+v", p)
    }
    if f.s.Position() != rules.Position(bs.FEN) { t.Fatalf("session should still be in the promoted position") }
}

func TestAutomaticDrawsBroadcastDrawAndReset(t *testing.T) {
    cases := []struct {
        name   string
        start  string
        move   chessmsg.Move
        method string
    }{
        {"insufficient material", "4k3/8/8/8/8/8/8/3rK3 w - - 0 1", chessmsg.Move{From: "e1", To: "d1"}, "insufficientmaterial"},
        {"75-move rule", "4k3/8/8/8/8/8/8/R3K3 w - - 149 100", chessmsg.Move{From: "a1", To: "a2"}, "seventyfivemoverule"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            o, err := rules.NewStandardFrom(tc.start)
            if err != nil { t.Fatalf("oracle: %v", err) }
            f := newFixture(t, o, false)
            f.seatPlayers("w", "b")

            evs, err := f.s.ProposeMove("w", tc.move)
            if err != nil { t.Fatalf("move: %v", err) }
            if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState, chessmsg.TypeDraw, chessmsg.TypeBoardState) {
                t.Fatalf("events %v", typesOf(evs))
            }
            if r := decode[chessmsg.Result](t, evs[2]); r.Reason != tc.method || r.Winner != "" {
                t.Fatalf("draw result %+v", r)
            }
            if bs := decode[chessmsg.BoardState](t, evs[3]); bs.FEN != tc.start {
                t.Fatalf("reset snapshot %s", bs.FEN)
            }
            if len(f.rec.results) != 1 || f.rec.results[0].Result != domain.ResultDraw || f.rec.results[0].Method != tc.method {
                t.Fatalf("archived %+v", f.rec.results)
            }
        })
    }
}

func TestFivefoldRepetitionIsADraw(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    cycle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}

    // the start position occurs once before any move; four cycles bring it to five
    for i := 0; i < 3; i++ { f.play(t, cycle...) }
    f.play(t, cycle[:3]...)
    if f.s.Snapshot().MatchID != "match-1" || len(f.rec.results) != 0 { t.Fatalf("ended too early") }

    evs, err := f.s.ProposeMove("b", chessmsg.Move{From: "f6", To: "g8"})
    if err != nil { t.Fatalf("f6g8: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState, chessmsg.TypeDraw, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if r := decode[chessmsg.Result](t, evs[2]); r.Reason != "fivefoldrepetition" {
        t.Fatalf("draw reason %q", r.Reason)
    }
    if bs := decode[chessmsg.BoardState](t, evs[3]); bs.FEN != string(rules.StartPosition) {
        t.Fatalf("reset snapshot %s", bs.FEN)
    }
    if got := f.rec.results; len(got) != 1 || got[0].Plies != 16 || got[0].Method != "fivefoldrepetition" {
        t.Fatalf("archived %+v", got)
    }

    // the table starts over with the new game
    f.play(t, cycle...)
    if f.s.Snapshot().MatchID != "match-2" { t.Fatalf("new game should not inherit repetitions") }
}

func TestCheckmateBroadcastsWinnerAndResets(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    f.play(t, "f2f3", "e7e5", "g2g4")

    evs, err := f.s.ProposeMove("b", chessmsg.Move{From: "d8", To: "h4"})
    if err != nil { t.Fatalf("Qh4: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState, chessmsg.TypeCheckmate, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if r := decode[chessmsg.Result](t, evs[2]); r.Winner != "black" {
        t.Fatalf("winner=%q", r.Winner)
    }
    if bs := decode[chessmsg.BoardState](t, evs[3]); bs.FEN != string(rules.StartPosition) {
        t.Fatalf("next snapshot must be the start position, got %s", bs.FEN)
    }
    if f.s.Position() != rules.StartPosition { t.Fatalf("session not reset") }

    if len(f.rec.results) != 1 { t.Fatalf("expected one archived result, got %d", len(f.rec.results)) }
    got := f.rec.results[0]
    if got.Result != domain.ResultBlack || got.Method != "checkmate" || got.Plies != 4 || got.MatchID != "match-1" {
        t.Fatalf("archived %+v", got)
    }
    if snap := f.s.Snapshot(); snap.MatchID != "match-2" || snap.Status != string(StatusInProgress) || snap.LastResult == nil {
        t.Fatalf("snapshot after reset %+v", snap)
    }
}

func TestStalemateResets(t *testing.T) {
    start := "7k/8/6K1/8/8/8/5Q2/8 w - - 0 1"
    o, err := rules.NewStandardFrom(start)
    if err != nil { t.Fatalf("oracle: %v", err) }
    f := newFixture(t, o, false)
    f.seatPlayers("w", "b")

    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "f2", To: "f7"})
    if err != nil { t.Fatalf("Qf7: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeMove, chessmsg.TypeBoardState, chessmsg.TypeStalemate, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if bs := decode[chessmsg.BoardState](t, evs[3]); bs.FEN != start {
        t.Fatalf("reset snapshot %s", bs.FEN)
    }
    if f.rec.results[0].Result != domain.ResultDraw { t.Fatalf("stalemate archived as %q", f.rec.results[0].Result) }
}

func TestDrawOfferAndAccept(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b", "o")
    f.play(t, "e2e4")

    evs, err := f.s.OfferDraw("w")
    if err != nil { t.Fatalf("OfferDraw: %v", err) }
    if len(evs) != 1 || evs[0].Target != "b" || evs[0].Message.Type != chessmsg.TypeDrawOffered {
        t.Fatalf("offer must be one targeted drawOffered to black, got %+v", evs)
    }
    if snap := f.s.Snapshot(); snap.DrawOfferBy != "white" { t.Fatalf("offer not recorded: %+v", snap) }

    evs, err = f.s.RespondToDraw("b", true)
    if err != nil { t.Fatalf("accept: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeDraw, chessmsg.TypeBoardState) {
        t.Fatalf("accept events %v", typesOf(evs))
    }
    draws := 0
    for _, e := range evs {
        if e.Message.Type == chessmsg.TypeDraw && e.IsGlobal() { draws++ }
    }
    if draws != 1 { t.Fatalf("expected exactly one global draw, got %d", draws) }
    if f.s.Position() != rules.StartPosition { t.Fatalf("not reset after draw") }
    if f.rec.results[0].Method != "agreement" { t.Fatalf("method=%q", f.rec.results[0].Method) }
}

func TestDrawDecline(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    if _, err := f.s.OfferDraw("b"); err != nil { t.Fatalf("OfferDraw: %v", err) }

    evs, err := f.s.RespondToDraw("w", false)
    if err != nil { t.Fatalf("decline: %v", err) }
    if len(evs) != 1 || evs[0].Target != "b" || evs[0].Message.Type != chessmsg.TypeDrawDeclinedNotification {
        t.Fatalf("decline should notify the offerer only, got %+v", evs)
    }
    if _, err := f.s.RespondToDraw("w", true); !errors.Is(err, ErrNoDrawOffer) {
        t.Fatalf("offer should be cleared after decline, got %v", err)
    }
}

func TestDrawResponsesThatAreIgnored(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w")
    if _, err := f.s.OfferDraw("w"); !errors.Is(err, ErrNoOpponent) {
        t.Fatalf("offer without opponent: %v", err)
    }
    f.seatPlayers("b", "o")
    if _, err := f.s.OfferDraw("o"); !errors.Is(err, ErrUnseatedAction) {
        t.Fatalf("observer offer: %v", err)
    }
    if _, err := f.s.RespondToDraw("b", true); !errors.Is(err, ErrNoDrawOffer) {
        t.Fatalf("answer without offer: %v", err)
    }
    _, _ = f.s.OfferDraw("w")
    before := len(f.out.events)
    if evs, err := f.s.RespondToDraw("w", true); !errors.Is(err, ErrNoDrawOffer) || len(evs) != 0 {
        t.Fatalf("offerer answering own offer: %v %v", err, evs)
    }
    if _, err := f.s.RespondToDraw("o", true); !errors.Is(err, ErrUnseatedAction) {
        t.Fatalf("observer answer: %v", err)
    }
    if len(f.out.events) != before { t.Fatalf("ignored answers produced events") }
}

func TestSeatedDisconnectResetsObserverDoesNot(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b", "o")
    f.play(t, "e2e4", "e7e5")

    if evs := f.s.Leave("o"); len(evs) != 0 {
        t.Fatalf("observer leave produced %v", typesOf(evs))
    }
    if f.s.Position() == rules.StartPosition { t.Fatalf("observer leave reset the game") }

    evs := f.s.Leave("b")
    if !sameTypes(typesOf(evs), chessmsg.TypeOpponentLeft, chessmsg.TypeBoardState) {
        t.Fatalf("seated leave events %v", typesOf(evs))
    }
    if !evs[0].IsGlobal() { t.Fatalf("opponentLeft must be global") }
    if f.s.Position() != rules.StartPosition { t.Fatalf("not reset") }
    if len(f.rec.results) != 1 || f.rec.results[0].Result != domain.ResultAbandoned {
        t.Fatalf("abandoned game not archived: %+v", f.rec.results)
    }
    if got := f.rec.results[0]; got.WhiteName != "W" || got.BlackName != "B" {
        t.Fatalf("archive should keep the leaver's name: %+v", got)
    }
    if _, ok := f.s.Seats().Lookup("b"); ok { t.Fatalf("leaver still registered") }
    if _, ok := f.s.Seats().Holder(seat.Black); ok { t.Fatalf("black seat still held") }

    f.s.Connect("n")
    if evs := f.s.Join("n", "newcomer"); decode[chessmsg.Role](t, evs[0]).Seat != "black" {
        t.Fatalf("vacated black seat should be reassigned")
    }
}

func TestAbandonWithoutMovesIsNotArchived(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    f.s.Leave("w")
    if len(f.rec.results) != 0 { t.Fatalf("empty game archived: %+v", f.rec.results) }
}

func TestResignResolvesSeatFromRegistry(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b", "o")

    evs, err := f.s.Resign("b", "white")
    if err != nil { t.Fatalf("Resign: %v", err) }
    if !sameTypes(typesOf(evs), chessmsg.TypeResigned, chessmsg.TypeBoardState) {
        t.Fatalf("events %v", typesOf(evs))
    }
    if r := decode[chessmsg.Result](t, evs[0]); r.Seat != "black" || r.Winner != "white" {
        t.Fatalf("resign result %+v", r)
    }
    if _, err := f.s.Resign("o", "black"); !errors.Is(err, ErrUnseatedAction) {
        t.Fatalf("observer resign should be ignored, got %v", err)
    }
}

func TestResignTrustingDeclaredSeat(t *testing.T) {
    f := newFixture(t, nil, true)
    f.seatPlayers("w", "b", "o")
    evs, err := f.s.Resign("o", "black")
    if err != nil { t.Fatalf("Resign: %v", err) }
    if r := decode[chessmsg.Result](t, evs[0]); r.Seat != "black" || r.Winner != "white" {
        t.Fatalf("declared seat not honoured: %+v", r)
    }
}

func TestOraclePanicBecomesInvalidMove(t *testing.T) {
    f := newFixture(t, panicOracle{rules.NewStandard()}, false)
    f.seatPlayers("w", "b")
    evs, err := f.s.ProposeMove("w", chessmsg.Move{From: "e2", To: "e4"})
    if !errors.Is(err, ErrIllegalMove) { t.Fatalf("expected ErrIllegalMove, got %v", err) }
    if len(evs) != 1 || evs[0].Message.Type != chessmsg.TypeInvalidMove || evs[0].Target != "w" {
        t.Fatalf("expected targeted invalidMove, got %+v", evs)
    }
    if f.s.Position() != rules.StartPosition { t.Fatalf("position changed after panic") }
}

func TestConcurrentJoinsSeatExactlyTwo(t *testing.T) {
    f := newFixture(t, nil, false)
    var wg sync.WaitGroup
    for i := 0; i < 16; i++ {
        id := fmt.Sprintf("c%d", i)
        wg.Add(1)
        go func() {
            defer wg.Done()
            f.s.Connect(id)
            f.s.Join(id, id)
        }()
    }
    wg.Wait()
    seated := 0
    for _, c := range f.s.Seats().Connections() {
        if c.Seat.Seated() { seated++ }
    }
    if seated != 2 { t.Fatalf("expected 2 seated, got %d", seated) }
    if _, ok := f.s.Seats().Holder(seat.White); !ok { t.Fatalf("white vacant") }
}

func TestResetBroadcastsStart(t *testing.T) {
    f := newFixture(t, nil, false)
    f.seatPlayers("w", "b")
    f.play(t, "d2d4")
    evs := f.s.Reset()
    if len(evs) != 1 || !evs[0].IsGlobal() || evs[0].Message.Type != chessmsg.TypeBoardState {
        t.Fatalf("reset events %+v", evs)
    }
    if f.s.Position() != rules.StartPosition { t.Fatalf("not reset") }
}

func TestNewRequiresOracle(t *testing.T) {
    if _, err := New(Options{}); err == nil { t.Fatalf("expected error") }
}
