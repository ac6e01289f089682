package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mintgrid/checkers-arena/internal/domain"
	"github.com/mintgrid/checkers-arena/internal/record"
)

func newRedisLedger(t *testing.T) (*Ledger, *RedisStore, *record.MemoryRepository, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	store, err := NewRedisStore(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedisStore: %v", err)
	}
	repo := record.NewMemoryRepository()
	cleanup := func() {
		_ = store.Close()
		mr.Close()
	}
	return New(store, repo), store, repo, cleanup
}

func TestFormMatchDebitsBothAndSettlePaysWinner(t *testing.T) {
	l, store, repo, cleanup := newRedisLedger(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Seed(ctx, "alice", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Seed(ctx, "bob", 150); err != nil {
		t.Fatalf("seed: %v", err)
	}

	esc, err := l.FormMatch(ctx, "alice", "bob", 100)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	if esc.Pot != 200 {
		t.Fatalf("pot = %d, want 200", esc.Pot)
	}
	if bal, _ := l.BalanceOf(ctx, "alice"); bal != 0 {
		t.Fatalf("alice balance = %d, want 0", bal)
	}
	if bal, _ := l.BalanceOf(ctx, "bob"); bal != 50 {
		t.Fatalf("bob balance = %d, want 50", bal)
	}

	bal, err := l.Settle(ctx, esc.MatchID, "alice", esc.Pot)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if bal != 200 {
		t.Fatalf("winner balance = %d, want 200", bal)
	}
	if b, _ := l.BalanceOf(ctx, "bob"); b != 50 {
		t.Fatalf("loser balance changed by settlement: %d", b)
	}

	entries := repo.LedgerEntries()
	if len(entries) != 3 {
		t.Fatalf("ledger entries = %d, want 3 (two bets, one win)", len(entries))
	}
	byReason := map[string]int{}
	for _, e := range entries {
		byReason[e.Reason]++
		if e.MatchID != esc.MatchID {
			t.Fatalf("entry missing match ref: %+v", e)
		}
	}
	if byReason[domain.ReasonBet] != 2 || byReason[domain.ReasonWin] != 1 {
		t.Fatalf("unexpected reasons: %v", byReason)
	}
}

func TestFormMatchRejectsInsufficientBalance(t *testing.T) {
	l, store, repo, cleanup := newRedisLedger(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Seed(ctx, "poor", 50); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Seed(ctx, "rich", 500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := l.FormMatch(ctx, "poor", "rich", 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal, _ := l.BalanceOf(ctx, "rich"); bal != 500 {
		t.Fatalf("rich balance touched: %d", bal)
	}
	if entries := repo.LedgerEntries(); len(entries) != 0 {
		t.Fatalf("no entries expected on rejected formation, got %d", len(entries))
	}
}

func TestFormMatchCompensatesFirstDebitOnSecondFailure(t *testing.T) {
	l, store, repo, cleanup := newRedisLedger(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Seed(ctx, "alice", 300); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Seed(ctx, "broke", 10); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := l.FormMatch(ctx, "alice", "broke", 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// alice's debit must have been compensated
	if bal, _ := l.BalanceOf(ctx, "alice"); bal != 300 {
		t.Fatalf("alice balance = %d, want 300 after compensation", bal)
	}
	entries := repo.LedgerEntries()
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2 (bet + refund)", len(entries))
	}
	if entries[0].Reason != domain.ReasonBet || entries[1].Reason != domain.ReasonRefund {
		t.Fatalf("unexpected entry order: %s, %s", entries[0].Reason, entries[1].Reason)
	}
}

func TestZeroStakeFormsWithoutDebits(t *testing.T) {
	store := NewMemoryStore(0)
	repo := record.NewMemoryRepository()
	l := New(store, repo)
	ctx := context.Background()

	esc, err := l.FormMatch(ctx, "a", "b", 0)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	if esc.Pot != 0 || esc.MatchID == "" {
		t.Fatalf("unexpected escrow: %+v", esc)
	}
	if entries := repo.LedgerEntries(); len(entries) != 0 {
		t.Fatalf("no entries expected for zero stake")
	}
}

func TestNegativeStakeRejected(t *testing.T) {
	l := New(NewMemoryStore(0), record.NewMemoryRepository())
	if _, err := l.FormMatch(context.Background(), "a", "b", -1); !errors.Is(err, ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake, got %v", err)
	}
}

func TestRefundReturnsBothStakes(t *testing.T) {
	l, store, repo, cleanup := newRedisLedger(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Seed(ctx, "alice", 300); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Seed(ctx, "bob", 300); err != nil {
		t.Fatalf("seed: %v", err)
	}

	esc, err := l.FormMatch(ctx, "alice", "bob", 100)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	l.Refund(ctx, esc, "alice", "bob")

	if bal, _ := l.BalanceOf(ctx, "alice"); bal != 300 {
		t.Fatalf("alice balance = %d, want 300 after refund", bal)
	}
	if bal, _ := l.BalanceOf(ctx, "bob"); bal != 300 {
		t.Fatalf("bob balance = %d, want 300 after refund", bal)
	}
	entries := repo.LedgerEntries()
	refunds := 0
	for _, e := range entries {
		if e.Reason == domain.ReasonRefund {
			refunds++
		}
	}
	if refunds != 2 {
		t.Fatalf("refund entries = %d, want 2", refunds)
	}
}

func TestMemoryStoreStartingBalance(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()
	if bal, _ := store.Balance(ctx, "fresh"); bal != 1000 {
		t.Fatalf("fresh balance = %d, want 1000", bal)
	}
	if _, err := store.Adjust(ctx, "fresh", -1001); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected overdraft rejection, got %v", err)
	}
	if bal, err := store.Adjust(ctx, "fresh", -400); err != nil || bal != 600 {
		t.Fatalf("adjust = %d, %v; want 600, nil", bal, err)
	}
}
