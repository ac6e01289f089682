package arenadto

// DomainError is the wire-facing error carried in error events.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}

// Error codes surfaced to clients. Validation and resource errors are
// non-fatal; consistency errors abort match formation.
const (
	CodeValidation   = "invalid_move"
	CodeNotYourTurn  = "not_your_turn"
	CodeChainLock    = "capture_chain_active"
	CodeInsufficient = "insufficient_balance"
	CodeRoomNotFound = "room_not_found"
	CodeSelfMatch    = "self_match"
	CodeAlreadyBusy  = "already_in_match_or_queue"
	CodeEscrowFailed = "escrow_failed"
	CodeNotInMatch   = "not_in_match"
	CodeInternal     = "internal_error"
	CodeBadRequest   = "bad_request"
	CodeInvalidStake = "invalid_stake"
)
