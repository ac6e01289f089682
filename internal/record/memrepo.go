package record

import (
	"context"
	"sync"
	"time"

	"github.com/mintgrid/checkers-arena/internal/domain"
)

// MemoryRepository is the in-memory repository used when no DATABASE_URL
// is configured. Development and tests only.
type MemoryRepository struct {
	mu sync.RWMutex

	matches  map[string]*domain.MatchRecord
	moves    map[string][]*domain.MoveRecord
	ledger   []*domain.LedgerEntry
	profiles map[string]*domain.Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		matches:  make(map[string]*domain.MatchRecord),
		moves:    make(map[string][]*domain.MoveRecord),
		profiles: make(map[string]*domain.Profile),
	}
}

func (m *MemoryRepository) CreateMatchRecord(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return ErrDuplicateMatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matches[rec.ID]; exists {
		return ErrDuplicateMatch
	}
	cp := *rec
	m.matches[rec.ID] = &cp
	return nil
}

func (m *MemoryRepository) AppendMove(ctx context.Context, mv *domain.MoveRecord) error {
	if mv == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mv
	m.moves[mv.MatchID] = append(m.moves[mv.MatchID], &cp)
	if rec, ok := m.matches[mv.MatchID]; ok {
		rec.MoveCount = len(m.moves[mv.MatchID])
	}
	return nil
}

func (m *MemoryRepository) FinalizeMatch(ctx context.Context, matchID, winner, reason string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.matches[matchID]; ok {
		rec.Winner = winner
		rec.EndReason = reason
		rec.EndedAt = endedAt
	}
	return nil
}

func (m *MemoryRepository) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.ledger = append(m.ledger, &cp)
	return nil
}

func (m *MemoryRepository) GetProfile(ctx context.Context, identity string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[identity]; ok && p != nil {
		cp := *p
		cp.Inventory = append([]string(nil), p.Inventory...)
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryRepository) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	if p == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Inventory = append([]string(nil), p.Inventory...)
	m.profiles[p.Identity] = &cp
	return nil
}

// LedgerEntries returns a copy of the audit trail for assertions in tests.
func (m *MemoryRepository) LedgerEntries() []*domain.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.LedgerEntry(nil), m.ledger...)
}

// MatchByID returns the stored record, or nil. Test helper.
func (m *MemoryRepository) MatchByID(id string) *domain.MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.matches[id]; ok {
		cp := *rec
		return &cp
	}
	return nil
}
