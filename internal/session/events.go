package session

import (
    "github.com/park285/chessroom/internal/relay"
    "github.com/park285/chessroom/internal/rules"
    "github.com/park285/chessroom/internal/seat"
    "github.com/park285/chessroom/pkg/chessmsg"
)

func boardState(pos rules.Position) chessmsg.Envelope {
    return chessmsg.MustNew(chessmsg.TypeBoardState, chessmsg.BoardState{FEN: string(pos)})
}

func roleEvent(connID string, st seat.Seat) relay.Event {
    if !st.Seated() {
        return relay.Targeted(connID, chessmsg.MustNew(chessmsg.TypeSpectatorRole, nil))
    }
    return relay.Targeted(connID, chessmsg.MustNew(chessmsg.TypePlayerRole, chessmsg.Role{Seat: string(st)}))
}

func rejection(connID string, t chessmsg.Type, mv chessmsg.Move, reason string) relay.Event {
    m := mv
    return relay.Targeted(connID, chessmsg.MustNew(t, chessmsg.Rejection{Move: &m, Reason: reason}))
}

func result(t chessmsg.Type, r chessmsg.Result) relay.Event {
    return relay.Global(chessmsg.MustNew(t, r))
}
