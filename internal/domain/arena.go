package domain

import "time"

// Ledger entry reasons. The audit trail is append-only.
const (
	ReasonBet        = "bet"
	ReasonWin        = "win"
	ReasonRefund     = "refund"
	ReasonRecharge   = "recharge"
	ReasonWithdrawal = "withdrawal"
)

// Match end reasons.
const (
	EndTerminal   = "terminal"
	EndSurrender  = "surrender"
	EndDisconnect = "disconnect"
	EndCancelled  = "cancelled"
)

// MatchRecord is the persisted row for one match.
type MatchRecord struct {
	ID        string
	PlayerA   string
	ColorA    string
	PlayerB   string
	ColorB    string
	Stake     int64
	Pot       int64
	Winner    string
	EndReason string
	MoveCount int
	StartedAt time.Time
	EndedAt   time.Time
}

// MoveRecord is one applied move within a match.
type MoveRecord struct {
	MatchID  string
	Seq      int
	Actor    string
	FromRow  int
	FromCol  int
	ToRow    int
	ToCol    int
	Capture  bool
	Captured int
	PlayedAt time.Time
}

// LedgerEntry records one balance mutation. Never updated after insert.
type LedgerEntry struct {
	ID        string
	Identity  string
	Amount    int64 // signed delta
	Reason    string
	Balance   int64 // balance after the mutation
	MatchID   string
	CreatedAt time.Time
}

// Profile carries the cross-match progression state of one identity.
type Profile struct {
	Identity   string
	Rating     int
	Wins       int
	Losses     int
	Winnings   int64
	Experience int64
	Level      int
	Inventory  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProfile returns the defaults for a first-seen identity.
func NewProfile(identity string) *Profile {
	now := time.Now()
	return &Profile{
		Identity:  identity,
		Rating:    1200,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
