package settle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mintgrid/checkers-arena/internal/domain"
	"github.com/mintgrid/checkers-arena/internal/ledger"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/record"
)

// Notifier pushes settlement side effects to a connected identity. A nil
// notifier drops them.
type Notifier interface {
	LevelUp(identity string, newLevel int, reward string)
}

// Outcome describes one terminal match handed over by its session.
type Outcome struct {
	MatchID string
	Winner  string
	Loser   string
	Pot     int64
	Reason  string
	EndedAt time.Time
}

// Service finalizes terminal matches: pays the pot, updates both profiles,
// and walks level-ups.
type Service struct {
	ledger   *ledger.Ledger
	repo     record.Repository
	levels   *LevelTable
	notifier Notifier

	ratingDelta int
	expWin      int64
	expLoss     int64
}

func NewService(l *ledger.Ledger, repo record.Repository, levels *LevelTable, notifier Notifier, ratingDelta int, expWin, expLoss int64) *Service {
	return &Service{
		ledger:      l,
		repo:        repo,
		levels:      levels,
		notifier:    notifier,
		ratingDelta: ratingDelta,
		expWin:      expWin,
		expLoss:     expLoss,
	}
}

// Complete settles one terminal match. Callers guarantee exactly-once
// invocation per match; the session's settled latch enforces it.
func (s *Service) Complete(ctx context.Context, out Outcome) (int64, error) {
	balance, err := s.ledger.Settle(ctx, out.MatchID, out.Winner, out.Pot)
	if err != nil {
		return 0, fmt.Errorf("settle match %s: %w", out.MatchID, err)
	}

	if err := s.repo.FinalizeMatch(ctx, out.MatchID, out.Winner, out.Reason, out.EndedAt); err != nil {
		obslog.L().Error("match_finalize_error",
			zap.String("match_id", out.MatchID),
			zap.Error(err),
		)
	}

	s.applyProgress(ctx, out.Winner, true, out.Pot)
	s.applyProgress(ctx, out.Loser, false, 0)

	obslog.L().Info("match_settled",
		zap.String("match_id", out.MatchID),
		zap.String("winner", out.Winner),
		zap.Int64("pot", out.Pot),
		zap.String("reason", out.Reason),
	)
	return balance, nil
}

// applyProgress mutates one side's profile: stats, rating, experience, and
// any level-ups the new experience crosses.
func (s *Service) applyProgress(ctx context.Context, identity string, won bool, winnings int64) {
	profile, err := s.repo.GetProfile(ctx, identity)
	if err != nil {
		obslog.L().Error("profile_load_error", zap.String("identity", identity), zap.Error(err))
		return
	}
	if profile == nil {
		profile = domain.NewProfile(identity)
	}

	if won {
		profile.Wins++
		profile.Rating += s.ratingDelta
		profile.Winnings += winnings
		profile.Experience += s.expWin
	} else {
		profile.Losses++
		profile.Rating -= s.ratingDelta
		profile.Experience += s.expLoss
	}

	// repeat-until-below-threshold: overflow experience can cross several
	// levels in one settlement
	for {
		need := s.levels.ThresholdToReach(profile.Level + 1)
		if profile.Experience < need {
			break
		}
		profile.Experience -= need
		profile.Level++
		reward := s.levels.Reward(profile.Level)
		if reward != "" {
			profile.Inventory = append(profile.Inventory, reward)
		}
		obslog.L().Info("level_up",
			zap.String("identity", identity),
			zap.Int("level", profile.Level),
			zap.String("reward", reward),
		)
		if s.notifier != nil {
			s.notifier.LevelUp(identity, profile.Level, reward)
		}
	}

	profile.UpdatedAt = time.Now()
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		obslog.L().Error("profile_save_error", zap.String("identity", identity), zap.Error(err))
	}
}

// ProfileOf loads the current profile, materializing defaults for a
// first-seen identity. Used by the gateway for stats payloads.
func (s *Service) ProfileOf(ctx context.Context, identity string) (*domain.Profile, error) {
	p, err := s.repo.GetProfile(ctx, identity)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = domain.NewProfile(identity)
	}
	return p, nil
}
