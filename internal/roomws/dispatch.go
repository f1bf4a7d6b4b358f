package roomws

import (
	"errors"

	"github.com/park285/chessroom/internal/obslog"
	"github.com/park285/chessroom/internal/session"
	"github.com/park285/chessroom/pkg/chessmsg"
	"go.uber.org/zap"
)

// handleFrame is the single inbound dispatch point. Every session error has already
// produced its targeted rejection (or is a silent ignore), so errors are only logged.
func (s *Server) handleFrame(connID string, frame []byte) {
	env, err := chessmsg.Parse(frame)
	if err != nil {
		obslog.L().Debug("ws_bad_frame", zap.String("conn_id", connID), zap.Error(err))
		return
	}

	switch env.Type {
	case chessmsg.TypeJoinGame:
		var req chessmsg.JoinGame
		if err := env.Decode(&req); err != nil || chessmsg.Validate(req) != nil {
			obslog.L().Debug("ws_join_name_dropped", zap.String("conn_id", connID))
			req.Name = ""
		}
		s.session.Join(connID, req.Name)
	case chessmsg.TypeMove:
		var mv chessmsg.Move
		// 디코딩 실패해도 세션이 invalidMove로 응답하도록 빈 수를 넘긴다
		_ = env.Decode(&mv)
		_, err = s.session.ProposeMove(connID, mv)
	case chessmsg.TypeResign:
		var req chessmsg.Resign
		_ = env.Decode(&req)
		_, err = s.session.Resign(connID, req.Seat)
	case chessmsg.TypeOfferDraw:
		_, err = s.session.OfferDraw(connID)
	case chessmsg.TypeDrawAccepted:
		_, err = s.session.RespondToDraw(connID, true)
	case chessmsg.TypeDrawDeclined:
		_, err = s.session.RespondToDraw(connID, false)
	default:
		err = chessmsg.ErrUnknownType
	}
	if err != nil {
		level := obslog.L().Debug
		if errors.Is(err, chessmsg.ErrUnknownType) {
			level = obslog.L().Info
		}
		level("ws_frame_rejected",
			zap.String("conn_id", connID),
			zap.String("type", string(env.Type)),
			zap.Bool("unseated", errors.Is(err, session.ErrUnseatedAction)),
			zap.Error(err),
		)
	}
}
