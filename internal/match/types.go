package match

import (
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

// Status is the session lifecycle state. The WAITING phase of a private
// room lives in the lobby's room registry; a Session exists only once both
// seats are escrowed, so it starts ACTIVE.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Notifier delivers events to a connected identity. Offline identities are
// dropped silently; the session does not block on delivery.
type Notifier interface {
	Send(identity string, evt arenadto.Event)
}

// Errors returned to the submitting player. All are non-fatal and leave
// the session untouched.
var (
	ErrNotActive   = arenadto.DomainError{Code: arenadto.CodeNotInMatch, Message: "match is not active"}
	ErrNotYourTurn = arenadto.DomainError{Code: arenadto.CodeNotYourTurn, Message: "it is not your turn"}
	ErrNotInMatch  = arenadto.DomainError{Code: arenadto.CodeNotInMatch, Message: "you are not part of this match"}
	ErrChainLock   = arenadto.DomainError{Code: arenadto.CodeChainLock, Message: "you must continue the capture chain"}
	ErrIllegalMove = arenadto.DomainError{Code: arenadto.CodeValidation, Message: "illegal move"}
)
