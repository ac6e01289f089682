package ledger

import "context"

// Errors surfaced to matchmaking. staticErr keeps them comparable consts.
var (
	ErrInvalidStake      = errf("stake must not be negative")
	ErrInsufficientFunds = errf("insufficient balance")
	ErrUnavailable       = errf("account store unavailable")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// AccountStore is the collaborator holding identity balances. Adjust must
// apply the delta atomically, rejecting any mutation that would take the
// balance below zero, and must serialize concurrent mutations of the same
// identity.
type AccountStore interface {
	Balance(ctx context.Context, identity string) (int64, error)
	Adjust(ctx context.Context, identity string, delta int64) (int64, error)
}

// Escrow is the committed result of a match formation debit pair.
type Escrow struct {
	MatchID string
	Stake   int64
	Pot     int64
}
