package match

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mintgrid/checkers-arena/internal/domain"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/record"
	"github.com/mintgrid/checkers-arena/internal/rules"
	"github.com/mintgrid/checkers-arena/internal/settle"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

// Player is one seat of a session.
type Player struct {
	ID    string
	Color rules.Color
}

// Session owns the mutable state of one match and serializes every
// operation against it behind its mutex. Two moves for the same match can
// never interleave; different sessions run concurrently.
type Session struct {
	mu sync.Mutex

	id      string
	players [2]Player
	board   *rules.Board
	turn    rules.Color
	chain   *rules.Cell
	stake   int64
	pot     int64
	status  Status
	history []rules.Move

	startedAt time.Time
	settled   bool

	notifier Notifier
	repo     record.Repository
	settler  *settle.Service

	// onFinished runs after the session leaves ACTIVE, outside settlement.
	// The coordinator uses it to free both identities.
	onFinished func(sessionID string, playerIDs [2]string)
}

// Deps carries the collaborators a session needs.
type Deps struct {
	Notifier   Notifier
	Repo       record.Repository
	Settler    *settle.Service
	OnFinished func(sessionID string, playerIDs [2]string)
}

// NewSession starts an ACTIVE match. The first identity takes red and
// moves first; the second takes black. Writes the match record before
// returning.
func NewSession(ctx context.Context, matchID, first, second string, stake, pot int64, deps Deps) *Session {
	s := &Session{
		id:         matchID,
		players:    [2]Player{{ID: first, Color: rules.Red}, {ID: second, Color: rules.Black}},
		board:      rules.NewBoard(),
		turn:       rules.Red,
		stake:      stake,
		pot:        pot,
		status:     StatusActive,
		startedAt:  time.Now(),
		notifier:   deps.Notifier,
		repo:       deps.Repo,
		settler:    deps.Settler,
		onFinished: deps.OnFinished,
	}
	if s.repo != nil {
		rec := &domain.MatchRecord{
			ID:        matchID,
			PlayerA:   first,
			ColorA:    string(rules.Red),
			PlayerB:   second,
			ColorB:    string(rules.Black),
			Stake:     stake,
			Pot:       pot,
			StartedAt: s.startedAt,
		}
		if err := s.repo.CreateMatchRecord(ctx, rec); err != nil {
			obslog.L().Error("match_record_error", zap.String("match_id", matchID), zap.Error(err))
		}
	}
	obslog.L().Info("match_start",
		zap.String("match_id", matchID),
		zap.String("red", first),
		zap.String("black", second),
		zap.Int64("stake", stake),
		zap.Int64("pot", pot),
	)
	return s
}

// ID returns the match id.
func (s *Session) ID() string { return s.id }

// Players returns both seats.
func (s *Session) Players() [2]Player { return s.players }

func (s *Session) playerByID(id string) *Player {
	for i := range s.players {
		if s.players[i].ID == id {
			return &s.players[i]
		}
	}
	return nil
}

func (s *Session) opponentOf(id string) *Player {
	for i := range s.players {
		if s.players[i].ID != id {
			return &s.players[i]
		}
	}
	return nil
}

// SubmitMove validates and applies one move for the actor. Rejections are
// DomainErrors with no state mutation.
func (s *Session) SubmitMove(ctx context.Context, actor string, from, to rules.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return ErrNotActive
	}
	player := s.playerByID(actor)
	if player == nil {
		return ErrNotInMatch
	}
	if player.Color != s.turn {
		return ErrNotYourTurn
	}
	if s.chain != nil && from != *s.chain {
		return ErrChainLock
	}

	var legal []rules.Move
	if s.chain != nil {
		legal = rules.CapturesFrom(s.board, *s.chain)
	} else {
		legal = rules.LegalMoves(s.board, player.Color)
	}
	var move *rules.Move
	submitted := rules.Move{From: from, To: to}
	for i := range legal {
		if legal[i].Equal(submitted) {
			move = &legal[i]
			break
		}
	}
	if move == nil {
		return ErrIllegalMove
	}

	res, err := rules.Apply(s.board, *move)
	if err != nil {
		// legal moves never fail to apply; treat as an internal fault
		obslog.L().Error("move_apply_error", zap.String("match_id", s.id), zap.Error(err))
		return arenadto.DomainError{Code: arenadto.CodeInternal, Message: "move could not be applied"}
	}
	s.history = append(s.history, *move)
	s.recordMove(ctx, actor, *move)

	capturedPiece := ""
	if len(res.Captured) > 0 {
		capturedPiece = string(res.Captured[0].Color) + "_" + string(res.Captured[0].Rank)
	}
	s.broadcast(arenadto.NewEvent(arenadto.EvMoveApplied, arenadto.MoveAppliedEvt{
		From:          arenadto.CellRef{Row: from.Row, Col: from.Col},
		To:            arenadto.CellRef{Row: to.Row, Col: to.Col},
		Actor:         actor,
		Captured:      toCellRefs(move.Captured),
		CapturedPiece: capturedPiece,
		Promoted:      res.Promoted,
		Board:         rules.Encode(s.board),
		Stats:         s.statsSnapshot(ctx),
	}))

	obslog.L().Info("match_move",
		zap.String("match_id", s.id),
		zap.String("actor", actor),
		zap.Bool("capture", move.Capture),
		zap.Bool("promoted", res.Promoted),
		zap.Int("ply", len(s.history)),
	)

	if move.Capture {
		if next := rules.CapturesFrom(s.board, to); len(next) > 0 {
			chainCell := to
			s.chain = &chainCell
			s.notify(actor, arenadto.NewEvent(arenadto.EvContinuedTurn, nil))
			return nil
		}
	}

	s.chain = nil
	s.turn = s.turn.Opponent()
	s.broadcast(arenadto.NewEvent(arenadto.EvTurnChanged, arenadto.TurnChangedEvt{
		CurrentTurn: string(s.turn),
	}))

	if winner, done := rules.Winner(s.board, s.turn); done {
		s.completeLocked(ctx, winner, domain.EndTerminal)
	}
	return nil
}

// Surrender forfeits the match in favor of the opponent. Calling it on a
// finished session is a no-op.
func (s *Session) Surrender(ctx context.Context, actor string) {
	s.forfeit(ctx, actor, domain.EndSurrender)
}

// Disconnect handles an abrupt transport loss exactly like a surrender.
func (s *Session) Disconnect(ctx context.Context, actor string) {
	s.forfeit(ctx, actor, domain.EndDisconnect)
}

func (s *Session) forfeit(ctx context.Context, actor string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return
	}
	player := s.playerByID(actor)
	if player == nil {
		return
	}
	winner := s.opponentOf(actor)
	obslog.L().Info("match_forfeit",
		zap.String("match_id", s.id),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	s.completeLocked(ctx, winner.Color, reason)
}

// Cancel ends an ACTIVE session with no winner and no settlement, for a
// match that cannot proceed because both seats are gone. The caller is
// responsible for returning the escrowed stakes.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled || s.status != StatusActive {
		return
	}
	s.status = StatusCancelled
	s.settled = true

	if s.repo != nil {
		if err := s.repo.FinalizeMatch(ctx, s.id, "", domain.EndCancelled, time.Now()); err != nil {
			obslog.L().Error("match_finalize_error", zap.String("match_id", s.id), zap.Error(err))
		}
	}
	obslog.L().Info("match_cancelled", zap.String("match_id", s.id))

	s.broadcast(arenadto.NewEvent(arenadto.EvGameOver, arenadto.GameOverEvt{
		Reason: domain.EndCancelled,
	}))

	if s.onFinished != nil {
		s.onFinished(s.id, [2]string{s.players[0].ID, s.players[1].ID})
	}
}

// completeLocked transitions to COMPLETED and runs settlement exactly
// once. Caller holds the mutex.
func (s *Session) completeLocked(ctx context.Context, winnerColor rules.Color, reason string) {
	if s.settled || s.status != StatusActive {
		return
	}
	s.status = StatusCompleted
	s.settled = true

	var winner, loser string
	for _, p := range s.players {
		if p.Color == winnerColor {
			winner = p.ID
		} else {
			loser = p.ID
		}
	}

	if s.settler != nil {
		if _, err := s.settler.Complete(ctx, settle.Outcome{
			MatchID: s.id,
			Winner:  winner,
			Loser:   loser,
			Pot:     s.pot,
			Reason:  reason,
			EndedAt: time.Now(),
		}); err != nil {
			obslog.L().Error("settlement_error", zap.String("match_id", s.id), zap.Error(err))
		}
	}

	s.broadcast(arenadto.NewEvent(arenadto.EvGameOver, arenadto.GameOverEvt{
		Winner: winner,
		Prize:  s.pot,
		Reason: reason,
	}))

	if s.onFinished != nil {
		s.onFinished(s.id, [2]string{s.players[0].ID, s.players[1].ID})
	}
}

// State snapshots the session for a requestGameState reply.
func (s *Session) State() arenadto.GameStateEvt {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt := arenadto.GameStateEvt{
		MatchID:     s.id,
		Board:       rules.Encode(s.board),
		CurrentTurn: string(s.turn),
		Status:      string(s.status),
		Pot:         s.pot,
		Players: []arenadto.PlayerInfo{
			{ID: s.players[0].ID, Color: string(s.players[0].Color)},
			{ID: s.players[1].ID, Color: string(s.players[1].Color)},
		},
	}
	if s.chain != nil {
		evt.ChainCell = &arenadto.CellRef{Row: s.chain.Row, Col: s.chain.Col}
	}
	return evt
}

// AvailableMoves lists the moves the actor could legally submit from the
// position, honoring turn order and an active capture chain.
func (s *Session) AvailableMoves(actor string, pos rules.Cell) []rules.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return nil
	}
	player := s.playerByID(actor)
	if player == nil || player.Color != s.turn {
		return nil
	}
	if s.chain != nil {
		if pos != *s.chain {
			return nil
		}
		return rules.CapturesFrom(s.board, *s.chain)
	}
	var out []rules.Move
	for _, m := range rules.LegalMoves(s.board, player.Color) {
		if m.From == pos {
			out = append(out, m)
		}
	}
	return out
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// statsSnapshot reads both players' profiles for the stats block carried
// on move broadcasts.
func (s *Session) statsSnapshot(ctx context.Context) map[string]arenadto.PlayerStats {
	if s.settler == nil {
		return nil
	}
	stats := make(map[string]arenadto.PlayerStats, len(s.players))
	for _, p := range s.players {
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

func (s *Session) recordMove(ctx context.Context, actor string, m rules.Move) {
	if s.repo == nil {
		return
	}
	mv := &domain.MoveRecord{
		MatchID:  s.id,
		Seq:      len(s.history),
		Actor:    actor,
		FromRow:  m.From.Row,
		FromCol:  m.From.Col,
		ToRow:    m.To.Row,
		ToCol:    m.To.Col,
		Capture:  m.Capture,
		Captured: len(m.Captured),
		PlayedAt: time.Now(),
	}
	if err := s.repo.AppendMove(ctx, mv); err != nil {
		obslog.L().Error("move_record_error", zap.String("match_id", s.id), zap.Error(err))
	}
}

func (s *Session) broadcast(evt arenadto.Event) {
	for _, p := range s.players {
		s.notify(p.ID, evt)
	}
}

func (s *Session) notify(identity string, evt arenadto.Event) {
	if s.notifier != nil {
		s.notifier.Send(identity, evt)
	}
}

func toCellRefs(cells []rules.Cell) []arenadto.CellRef {
	if len(cells) == 0 {
		return nil
	}
	out := make([]arenadto.CellRef, 0, len(cells))
	for _, c := range cells {
		out = append(out, arenadto.CellRef{Row: c.Row, Col: c.Col})
	}
	return out
}
