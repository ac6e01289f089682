package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mintgrid/checkers-arena/internal/ledger"
	"github.com/mintgrid/checkers-arena/internal/match"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/record"
	"github.com/mintgrid/checkers-arena/internal/rules"
	"github.com/mintgrid/checkers-arena/internal/settle"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

var (
	ErrAlreadyBusy       = arenadto.DomainError{Code: arenadto.CodeAlreadyBusy, Message: "already queued, hosting, or playing"}
	ErrInvalidStake      = arenadto.DomainError{Code: arenadto.CodeInvalidStake, Message: "stake out of range"}
	ErrRoomNotFound      = arenadto.DomainError{Code: arenadto.CodeRoomNotFound, Message: "no such room"}
	ErrSelfMatch         = arenadto.DomainError{Code: arenadto.CodeSelfMatch, Message: "cannot join your own room"}
	ErrInsufficientFunds = arenadto.DomainError{Code: arenadto.CodeInsufficient, Message: "insufficient balance for stake"}
	ErrEscrow            = arenadto.DomainError{Code: arenadto.CodeEscrowFailed, Message: "stake could not be escrowed", Retryable: true}
)

type occupation string

const (
	occQueued  occupation = "queued"
	occHosting occupation = "hosting"
	occPlaying occupation = "playing"
)

type queueEntry struct {
	identity string
	stake    int64
	joinedAt time.Time
}

type room struct {
	code      string
	host      string
	stake     int64
	createdAt time.Time
}

// Coordinator owns matchmaking: per-stake queues, private rooms, and the
// live session registry. Every identity holds at most one place across
// all three at any time.
type Coordinator struct {
	mu sync.Mutex

	queues   map[int64][]*queueEntry
	rooms    map[string]*room
	busy     map[string]occupation
	sessions map[string]*match.Session
	byPlayer map[string]*match.Session

	// departed marks identities that disconnected after a pairing claimed
	// them but before formMatch registered the session. formMatch collects
	// the marks once the session exists.
	departed map[string]bool

	ledger   *ledger.Ledger
	repo     record.Repository
	settler  *settle.Service
	notifier match.Notifier
	maxStake int64
}

func NewCoordinator(l *ledger.Ledger, repo record.Repository, settler *settle.Service, notifier match.Notifier, maxStake int64) *Coordinator {
	return &Coordinator{
		queues:   make(map[int64][]*queueEntry),
		rooms:    make(map[string]*room),
		busy:     make(map[string]occupation),
		sessions: make(map[string]*match.Session),
		byPlayer: make(map[string]*match.Session),
		departed: make(map[string]bool),
		ledger:   l,
		repo:     repo,
		settler:  settler,
		notifier: notifier,
		maxStake: maxStake,
	}
}

func (c *Coordinator) validStake(stake int64) bool {
	return stake >= 0 && stake <= c.maxStake
}

// checkFunds is the advisory balance gate at queue/room entry time. The
// authoritative check happens again inside the escrow debit; this one only
// keeps obviously underfunded identities out of the queue.
func (c *Coordinator) checkFunds(ctx context.Context, identity string, stake int64) error {
	if stake == 0 {
		return nil
	}
	bal, err := c.ledger.BalanceOf(ctx, identity)
	if err != nil {
		obslog.L().Error("balance_check_error", zap.String("identity", identity), zap.Error(err))
		return ErrEscrow
	}
	if bal < stake {
		return ErrInsufficientFunds
	}
	return nil
}

// FindMatch enqueues the identity at the given stake, pairing it with the
// longest-waiting opponent at the same stake when one exists. Queues at
// different stakes never mix.
func (c *Coordinator) FindMatch(ctx context.Context, identity string, stake int64) error {
	if !c.validStake(stake) {
		return ErrInvalidStake
	}
	if err := c.checkFunds(ctx, identity, stake); err != nil {
		return err
	}

	c.mu.Lock()
	if _, taken := c.busy[identity]; taken {
		c.mu.Unlock()
		return ErrAlreadyBusy
	}

	q := c.queues[stake]
	if len(q) == 0 {
		c.queues[stake] = append(q, &queueEntry{identity: identity, stake: stake, joinedAt: time.Now()})
		c.busy[identity] = occQueued
		pos := len(c.queues[stake])
		c.mu.Unlock()
		c.notifier.Send(identity, arenadto.NewEvent(arenadto.EvWaiting, arenadto.WaitingEvt{Stake: stake, Position: pos}))
		return nil
	}

	// pair with the head of the queue: both leave visibility before any
	// balance is touched, so no third player can pair with either
	head := q[0]
	c.queues[stake] = q[1:]
	c.busy[identity] = occPlaying
	c.busy[head.identity] = occPlaying
	c.mu.Unlock()

	c.formMatch(ctx, head.identity, identity, stake, "")
	return nil
}

// CancelFindMatch removes the identity's queue entry. Cancelling with no
// entry silently succeeds; a pairing that already claimed the entry stands.
func (c *Coordinator) CancelFindMatch(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[identity] != occQueued {
		return
	}
	c.removeQueuedLocked(identity)
	delete(c.busy, identity)
}

func (c *Coordinator) removeQueuedLocked(identity string) {
	for stake, q := range c.queues {
		for i, e := range q {
			if e.identity == identity {
				c.queues[stake] = append(q[:i], q[i+1:]...)
				if len(c.queues[stake]) == 0 {
					delete(c.queues, stake)
				}
				return
			}
		}
	}
}

// CreatePrivateRoom opens an invite-only room and returns its join code.
func (c *Coordinator) CreatePrivateRoom(ctx context.Context, identity string, stake int64) (string, error) {
	if !c.validStake(stake) {
		return "", ErrInvalidStake
	}
	if err := c.checkFunds(ctx, identity, stake); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.busy[identity]; taken {
		return "", ErrAlreadyBusy
	}

	code := newRoomCode()
	for _, exists := c.rooms[code]; exists; _, exists = c.rooms[code] {
		code = newRoomCode()
	}
	c.rooms[code] = &room{code: code, host: identity, stake: stake, createdAt: time.Now()}
	c.busy[identity] = occHosting

	c.notifier.Send(identity, arenadto.NewEvent(arenadto.EvRoomCreated, arenadto.RoomCreatedEvt{
		RoomCode: code,
		Stake:    stake,
	}))
	obslog.L().Info("room_created", zap.String("code", code), zap.String("host", identity), zap.Int64("stake", stake))
	return code, nil
}

// JoinPrivateRoom consumes the room and forms a match with its host. The
// host keeps red.
func (c *Coordinator) JoinPrivateRoom(ctx context.Context, identity, code string) error {
	c.mu.Lock()
	r, ok := c.rooms[code]
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.host == identity {
		c.mu.Unlock()
		return ErrSelfMatch
	}
	if _, taken := c.busy[identity]; taken {
		c.mu.Unlock()
		return ErrAlreadyBusy
	}
	stake := r.stake
	c.mu.Unlock()

	// balance read is a suspension point; the room stays visible until the
	// check passes, then its existence is re-verified before consumption
	if err := c.checkFunds(ctx, identity, stake); err != nil {
		return err
	}

	c.mu.Lock()
	r, ok = c.rooms[code]
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if _, taken := c.busy[identity]; taken {
		c.mu.Unlock()
		return ErrAlreadyBusy
	}
	delete(c.rooms, code)
	c.busy[identity] = occPlaying
	c.busy[r.host] = occPlaying
	c.mu.Unlock()

	c.formMatch(ctx, r.host, identity, r.stake, code)
	return nil
}

// formMatch escrows both stakes and starts the session. The first identity
// takes red. Both identities are already marked busy; a failed escrow
// releases them.
func (c *Coordinator) formMatch(ctx context.Context, first, second string, stake int64, roomCode string) {
	esc, err := c.ledger.FormMatch(ctx, first, second, stake)
	if err != nil {
		c.mu.Lock()
		delete(c.busy, first)
		delete(c.busy, second)
		delete(c.departed, first)
		delete(c.departed, second)
		c.mu.Unlock()

		evt := escrowFailureEvent(err)
		c.notifier.Send(first, evt)
		c.notifier.Send(second, evt)
		obslog.L().Warn("match_form_failed",
			zap.String("first", first),
			zap.String("second", second),
			zap.Int64("stake", stake),
			zap.Error(err),
		)
		return
	}

	s := match.NewSession(ctx, esc.MatchID, first, second, esc.Stake, esc.Pot, match.Deps{
		Notifier:   c.notifier,
		Repo:       c.repo,
		Settler:    c.settler,
		OnFinished: c.onSessionFinished,
	})

	c.mu.Lock()
	c.sessions[s.ID()] = s
	c.byPlayer[first] = s
	c.byPlayer[second] = s
	var gone []string
	for _, id := range []string{first, second} {
		if c.departed[id] {
			delete(c.departed, id)
			gone = append(gone, id)
		}
	}
	c.mu.Unlock()

	for _, p := range s.Players() {
		c.notifier.Send(p.ID, arenadto.NewEvent(arenadto.EvMatchFound, arenadto.MatchFoundEvt{
			MatchID:  s.ID(),
			RoomCode: roomCode,
			Stake:    esc.Stake,
			Pot:      esc.Pot,
			Players: []arenadto.PlayerInfo{
				{ID: first, Color: string(rules.Red)},
				{ID: second, Color: string(rules.Black)},
			},
			Board:       rules.Encode(rules.NewBoard()),
			CurrentTurn: string(rules.Red),
			YourColor:   string(p.Color),
		}))
	}

	// honor disconnects that raced the escrow: the identity was already
	// claimed as playing but no session existed to forfeit
	switch len(gone) {
	case 1:
		s.Disconnect(ctx, gone[0])
	case 2:
		s.Cancel(ctx)
		c.ledger.Refund(ctx, esc, first, second)
	}
}

func escrowFailureEvent(err error) arenadto.Event {
	var derr arenadto.DomainError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		derr = ErrInsufficientFunds
	case errors.Is(err, ledger.ErrInvalidStake):
		derr = ErrInvalidStake
	default:
		derr = ErrEscrow
	}
	return arenadto.NewEvent(arenadto.EvError, arenadto.ErrorEvt{Code: derr.Code, Message: derr.Message})
}

func (c *Coordinator) onSessionFinished(sessionID string, playerIDs [2]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	for _, id := range playerIDs {
		delete(c.byPlayer, id)
		delete(c.busy, id)
	}
}

// SessionOf returns the identity's live session, or nil.
func (c *Coordinator) SessionOf(identity string) *match.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byPlayer[identity]
}

// HandleDisconnect clears every place the identity holds. A queued entry
// or hosted room simply evaporates; a live match is forfeited.
func (c *Coordinator) HandleDisconnect(ctx context.Context, identity string) {
	c.mu.Lock()
	switch c.busy[identity] {
	case occQueued:
		c.removeQueuedLocked(identity)
		delete(c.busy, identity)
		c.mu.Unlock()
		return
	case occHosting:
		for code, r := range c.rooms {
			if r.host == identity {
				delete(c.rooms, code)
				break
			}
		}
		delete(c.busy, identity)
		c.mu.Unlock()
		return
	case occPlaying:
		s := c.byPlayer[identity]
		if s == nil {
			// a pairing claimed this identity but the escrow is still in
			// flight; leave a mark for formMatch to forfeit once the
			// session registers
			c.departed[identity] = true
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		s.Disconnect(ctx, identity)
		return
	}
	c.mu.Unlock()
}

// QueueDepth reports how many identities wait at the stake.
func (c *Coordinator) QueueDepth(stake int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[stake])
}

// OpenRooms reports the number of rooms awaiting a guest.
func (c *Coordinator) OpenRooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}
