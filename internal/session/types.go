package session

import (
    "errors"

    "github.com/park285/chessroom/internal/domain"
    "github.com/park285/chessroom/internal/relay"
)

// Status of the single game in the room. Terminal values are transient: the
// session resets to StatusInProgress in the same operation that reaches them.
type Status string

const (
    StatusInProgress Status = "in_progress"
    StatusCheckmate  Status = "checkmate"
    StatusStalemate  Status = "stalemate"
    StatusResigned   Status = "resigned"
    StatusDraw       Status = "draw"
    StatusAbandoned  Status = "abandoned"
)

// Errors. All of them are handled inside the session (targeted rejection or silent
// ignore); they are returned so callers can log and tests can assert.
var (
    ErrInvalidTurn    = errors.New("invalid turn")
    ErrIllegalMove    = errors.New("illegal move")
    ErrUnseatedAction = errors.New("unseated action")
    ErrNoOpponent     = errors.New("no seated opponent")
    ErrNoDrawOffer    = errors.New("no draw offer to answer")
)

// Dispatcher delivers events. It is invoked while the session lock is held and must not block.
type Dispatcher interface {
    Dispatch(events ...relay.Event)
}

// Recorder receives finished games.
type Recorder interface {
    Record(r domain.MatchResult)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(...relay.Event) {}
