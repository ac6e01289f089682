package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mintgrid/checkers-arena/internal/domain"
)

var ErrDuplicateMatch = errors.New("match record already exists")

// Repository persists match records, the move log, the ledger audit trail,
// and player profiles.
type Repository interface {
	CreateMatchRecord(ctx context.Context, rec *domain.MatchRecord) error
	AppendMove(ctx context.Context, mv *domain.MoveRecord) error
	FinalizeMatch(ctx context.Context, matchID, winner, reason string, endedAt time.Time) error
	AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	GetProfile(ctx context.Context, identity string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, p *domain.Profile) error
}

type repository struct {
	db *sql.DB
}

// NewRepository opens a Postgres-backed repository.
func NewRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &repository{db: db}, nil
}

func (r *repository) CreateMatchRecord(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return fmt.Errorf("nil match record payload")
	}
	const query = `
		INSERT INTO matches (
			match_id, player_a, color_a, player_b, color_b,
			stake, pot, winner, end_reason, move_count,
			started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (match_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.PlayerA, rec.ColorA,
		rec.PlayerB, rec.ColorB,
		rec.Stake, rec.Pot,
		nullIfEmpty(rec.Winner), nullIfEmpty(rec.EndReason), rec.MoveCount,
		rec.StartedAt, nullIfZeroTime(rec.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateMatch
	}
	return nil
}

func (r *repository) AppendMove(ctx context.Context, mv *domain.MoveRecord) error {
	if mv == nil {
		return fmt.Errorf("nil move payload")
	}
	const query = `
		INSERT INTO match_moves (
			match_id, seq, actor,
			from_row, from_col, to_row, to_col,
			capture, captured, played_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		mv.MatchID, mv.Seq, mv.Actor,
		mv.FromRow, mv.FromCol, mv.ToRow, mv.ToCol,
		mv.Capture, mv.Captured, mv.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func (r *repository) FinalizeMatch(ctx context.Context, matchID, winner, reason string, endedAt time.Time) error {
	const query = `
		UPDATE matches
		SET winner = $2, end_reason = $3, ended_at = $4
		WHERE match_id = $1`
	_, err := r.db.ExecContext(ctx, query, matchID, nullIfEmpty(winner), reason, endedAt)
	if err != nil {
		return fmt.Errorf("finalize match: %w", err)
	}
	return nil
}

func (r *repository) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e == nil {
		return fmt.Errorf("nil ledger entry payload")
	}
	const query = `
		INSERT INTO ledger_entries (
			entry_id, identity, amount, reason, balance, match_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Identity, e.Amount, e.Reason, e.Balance,
		nullIfEmpty(e.MatchID), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *repository) GetProfile(ctx context.Context, identity string) (*domain.Profile, error) {
	const query = `
		SELECT
			identity, rating, wins, losses, winnings,
			experience, level, inventory, created_at, updated_at
		FROM player_profiles
		WHERE identity = $1
		LIMIT 1`

	var (
		p            domain.Profile
		inventoryRaw []byte
	)
	err := r.db.QueryRowContext(ctx, query, identity).Scan(
		&p.Identity,
		&p.Rating,
		&p.Wins,
		&p.Losses,
		&p.Winnings,
		&p.Experience,
		&p.Level,
		&inventoryRaw,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if len(inventoryRaw) > 0 {
		if err := json.Unmarshal(inventoryRaw, &p.Inventory); err != nil {
			return nil, fmt.Errorf("unmarshal inventory: %w", err)
		}
	}
	return &p, nil
}

func (r *repository) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	if p == nil {
		return fmt.Errorf("nil profile payload")
	}
	inventoryRaw, err := json.Marshal(p.Inventory)
	if err != nil {
		return fmt.Errorf("marshal inventory: %w", err)
	}
	const query = `
		INSERT INTO player_profiles (
			identity, rating, wins, losses, winnings,
			experience, level, inventory, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NOW(), NOW())
		ON CONFLICT (identity)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			winnings = EXCLUDED.winnings,
			experience = EXCLUDED.experience,
			level = EXCLUDED.level,
			inventory = EXCLUDED.inventory,
			updated_at = NOW()`
	_, err = r.db.ExecContext(ctx, query,
		p.Identity, p.Rating, p.Wins, p.Losses, p.Winnings,
		p.Experience, p.Level, inventoryRaw,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
