package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/mintgrid/checkers-arena/internal/match"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/rules"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

// dispatch routes one inbound event. Rejections come back on the same
// socket as error events; the connection stays open.
func (s *Server) dispatch(ctx context.Context, identity string, evt arenadto.Event) {
	switch evt.Type {
	case arenadto.EvFindMatch:
		var req arenadto.FindMatchReq
		if !s.decode(identity, evt.Data, &req) {
			return
		}
		s.reply(identity, s.coord.FindMatch(ctx, identity, req.Stake))

	case arenadto.EvCancelFindMatch:
		s.coord.CancelFindMatch(identity)

	case arenadto.EvCreateRoom:
		var req arenadto.CreateRoomReq
		if !s.decode(identity, evt.Data, &req) {
			return
		}
		_, err := s.coord.CreatePrivateRoom(ctx, identity, req.Stake)
		s.reply(identity, err)

	case arenadto.EvJoinRoom:
		var req arenadto.JoinRoomReq
		if !s.decode(identity, evt.Data, &req) {
			return
		}
		s.reply(identity, s.coord.JoinPrivateRoom(ctx, identity, req.Code))

	case arenadto.EvMakeMove:
		var req arenadto.MakeMoveReq
		if !s.decode(identity, evt.Data, &req) {
			return
		}
		sess := s.coord.SessionOf(identity)
		if sess == nil {
			s.reply(identity, match.ErrNotInMatch)
			return
		}
		from := rules.Cell{Row: req.From.Row, Col: req.From.Col}
		to := rules.Cell{Row: req.To.Row, Col: req.To.Col}
		s.reply(identity, sess.SubmitMove(ctx, identity, from, to))

	case arenadto.EvSurrender:
		sess := s.coord.SessionOf(identity)
		if sess == nil {
			s.reply(identity, match.ErrNotInMatch)
			return
		}
		sess.Surrender(ctx, identity)

	case arenadto.EvGameState:
		sess := s.coord.SessionOf(identity)
		if sess == nil {
			s.reply(identity, match.ErrNotInMatch)
			return
		}
		state := sess.State()
		state.Stats = s.playerStats(ctx, state.Players)
		s.hub.Send(identity, arenadto.NewEvent(arenadto.EvState, state))

	case arenadto.EvAvailableMoves:
		var req arenadto.AvailableMovesReq
		if !s.decode(identity, evt.Data, &req) {
			return
		}
		sess := s.coord.SessionOf(identity)
		if sess == nil {
			s.reply(identity, match.ErrNotInMatch)
			return
		}
		pos := rules.Cell{Row: req.Position.Row, Col: req.Position.Col}
		moves := sess.AvailableMoves(identity, pos)
		s.hub.Send(identity, arenadto.NewEvent(arenadto.EvMovesAvailable, arenadto.AvailableMovesEvt{
			Moves: toMoveRefs(moves),
		}))

	default:
		obslog.L().Debug("unknown_event", zap.String("identity", identity), zap.String("type", evt.Type))
		s.sendError(identity, arenadto.DomainError{Code: arenadto.CodeBadRequest, Message: "unknown event type"})
	}
}

func (s *Server) playerStats(ctx context.Context, players []arenadto.PlayerInfo) map[string]arenadto.PlayerStats {
	if s.settler == nil {
		return nil
	}
	stats := make(map[string]arenadto.PlayerStats, len(players))
	for _, p := range players {
		profile, err := s.settler.ProfileOf(ctx, p.ID)
		if err != nil || profile == nil {
			continue
		}
		stats[p.ID] = arenadto.PlayerStats{
			Rating:     profile.Rating,
			Wins:       profile.Wins,
			Losses:     profile.Losses,
			Level:      profile.Level,
			Experience: profile.Experience,
		}
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

func (s *Server) decode(identity string, raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		s.sendError(identity, arenadto.DomainError{Code: arenadto.CodeBadRequest, Message: "missing payload"})
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.sendError(identity, arenadto.DomainError{Code: arenadto.CodeBadRequest, Message: "malformed payload"})
		return false
	}
	return true
}

// reply converts an operation error into an error event. nil means the
// operation's own notifications already said everything.
func (s *Server) reply(identity string, err error) {
	if err == nil {
		return
	}
	var derr arenadto.DomainError
	if errors.As(err, &derr) {
		s.sendError(identity, derr)
		return
	}
	obslog.L().Error("dispatch_error", zap.String("identity", identity), zap.Error(err))
	s.sendError(identity, arenadto.DomainError{Code: arenadto.CodeInternal, Message: "internal error"})
}

func (s *Server) sendError(identity string, derr arenadto.DomainError) {
	s.hub.Send(identity, arenadto.NewEvent(arenadto.EvError, arenadto.ErrorEvt{
		Code:    derr.Code,
		Message: derr.Message,
	}))
}

func toMoveRefs(moves []rules.Move) []arenadto.MoveRef {
	out := make([]arenadto.MoveRef, 0, len(moves))
	for _, m := range moves {
		ref := arenadto.MoveRef{
			From:    arenadto.CellRef{Row: m.From.Row, Col: m.From.Col},
			To:      arenadto.CellRef{Row: m.To.Row, Col: m.To.Col},
			Capture: m.Capture,
		}
		for _, c := range m.Captured {
			ref.Captured = append(ref.Captured, arenadto.CellRef{Row: c.Row, Col: c.Col})
		}
		out = append(out, ref)
	}
	return out
}
