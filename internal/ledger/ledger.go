package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mintgrid/checkers-arena/internal/domain"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/record"
)

// Ledger is the only component that mutates balances. Every mutation it
// performs lands in the append-only audit trail.
type Ledger struct {
	store AccountStore
	repo  record.Repository
}

func New(store AccountStore, repo record.Repository) *Ledger {
	return &Ledger{store: store, repo: repo}
}

// BalanceOf reads the current balance without mutating anything.
func (l *Ledger) BalanceOf(ctx context.Context, identity string) (int64, error) {
	return l.store.Balance(ctx, identity)
}

// FormMatch re-validates both balances at formation time and debits the
// stake from each side as one logical unit. If the second debit fails the
// first is compensated before the error returns; no escrow survives a
// partial failure. A zero stake skips the debits but still commits a match
// id.
func (l *Ledger) FormMatch(ctx context.Context, playerA, playerB string, stake int64) (*Escrow, error) {
	if stake < 0 {
		return nil, ErrInvalidStake
	}
	matchID := uuid.NewString()
	if stake == 0 {
		return &Escrow{MatchID: matchID, Stake: 0, Pot: 0}, nil
	}

	balA, err := l.store.Adjust(ctx, playerA, -stake)
	if err != nil {
		return nil, fmt.Errorf("debit %s: %w", playerA, err)
	}
	l.append(ctx, playerA, -stake, domain.ReasonBet, balA, matchID)
	obslog.L().Info("escrow_debit",
		zap.String("match_id", matchID),
		zap.String("identity", playerA),
		zap.Int64("stake", stake),
	)

	balB, err := l.store.Adjust(ctx, playerB, -stake)
	if err != nil {
		// compensate the committed debit before surfacing the failure
		if refBal, cerr := l.store.Adjust(ctx, playerA, stake); cerr != nil {
			obslog.L().Error("escrow_reconcile_fault",
				zap.String("match_id", matchID),
				zap.String("identity", playerA),
				zap.Int64("stake", stake),
				zap.NamedError("debit_error", err),
				zap.NamedError("compensation_error", cerr),
			)
		} else {
			l.append(ctx, playerA, stake, domain.ReasonRefund, refBal, matchID)
			obslog.L().Warn("escrow_compensated",
				zap.String("match_id", matchID),
				zap.String("identity", playerA),
				zap.Int64("stake", stake),
			)
		}
		return nil, fmt.Errorf("debit %s: %w", playerB, err)
	}
	l.append(ctx, playerB, -stake, domain.ReasonBet, balB, matchID)
	obslog.L().Info("escrow_debit",
		zap.String("match_id", matchID),
		zap.String("identity", playerB),
		zap.Int64("stake", stake),
	)

	return &Escrow{MatchID: matchID, Stake: stake, Pot: 2 * stake}, nil
}

// Settle credits the full pot to the winner and returns the post-settlement
// balance.
func (l *Ledger) Settle(ctx context.Context, matchID, winner string, pot int64) (int64, error) {
	if pot == 0 {
		bal, err := l.store.Balance(ctx, winner)
		return bal, err
	}
	bal, err := l.store.Adjust(ctx, winner, pot)
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", winner, err)
	}
	l.append(ctx, winner, pot, domain.ReasonWin, bal, matchID)
	obslog.L().Info("settle_credit",
		zap.String("match_id", matchID),
		zap.String("identity", winner),
		zap.Int64("pot", pot),
		zap.Int64("balance", bal),
	)
	return bal, nil
}

// Refund compensates both stakes of a formed escrow that never reached an
// active match (e.g. session setup failure after formation).
func (l *Ledger) Refund(ctx context.Context, esc *Escrow, playerA, playerB string) {
	if esc == nil || esc.Stake == 0 {
		return
	}
	for _, id := range []string{playerA, playerB} {
		bal, err := l.store.Adjust(ctx, id, esc.Stake)
		if err != nil {
			obslog.L().Error("escrow_reconcile_fault",
				zap.String("match_id", esc.MatchID),
				zap.String("identity", id),
				zap.Int64("stake", esc.Stake),
				zap.Error(err),
			)
			continue
		}
		l.append(ctx, id, esc.Stake, domain.ReasonRefund, bal, esc.MatchID)
	}
}

// append writes the audit entry. A persistence failure is logged for
// reconciliation; the balance mutation already happened and is not rolled
// back over an audit write.
func (l *Ledger) append(ctx context.Context, identity string, amount int64, reason string, balance int64, matchID string) {
	if l.repo == nil {
		return
	}
	e := &domain.LedgerEntry{
		ID:        uuid.NewString(),
		Identity:  identity,
		Amount:    amount,
		Reason:    reason,
		Balance:   balance,
		MatchID:   matchID,
		CreatedAt: time.Now(),
	}
	if err := l.repo.AppendLedgerEntry(ctx, e); err != nil {
		obslog.L().Error("ledger_append_error",
			zap.String("identity", identity),
			zap.String("reason", reason),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
	}
}
