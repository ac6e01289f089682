package ledger

import (
	"context"
	"sync"
)

// MemoryStore is the in-process account store for development runs without
// Redis. Unknown identities materialize with the configured starting
// balance.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	starting int64
}

func NewMemoryStore(startingBalance int64) *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		starting: startingBalance,
	}
}

func (s *MemoryStore) Balance(ctx context.Context, identity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(identity), nil
}

func (s *MemoryStore) Adjust(ctx context.Context, identity string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.touch(identity) + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	s.balances[identity] = next
	return next, nil
}

// Seed force-sets a balance. Tests only.
func (s *MemoryStore) Seed(identity string, balance int64) {
	s.mu.Lock()
	s.balances[identity] = balance
	s.mu.Unlock()
}

// touch materializes the identity. Caller holds the lock.
func (s *MemoryStore) touch(identity string) int64 {
	if _, ok := s.balances[identity]; !ok {
		s.balances[identity] = s.starting
	}
	return s.balances[identity]
}
