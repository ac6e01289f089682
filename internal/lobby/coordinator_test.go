package lobby

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mintgrid/checkers-arena/internal/domain"
	"github.com/mintgrid/checkers-arena/internal/ledger"
	"github.com/mintgrid/checkers-arena/internal/record"
	"github.com/mintgrid/checkers-arena/internal/rules"
	"github.com/mintgrid/checkers-arena/internal/settle"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

type eventSink struct {
	mu     sync.Mutex
	events map[string][]arenadto.Event
}

func newEventSink() *eventSink {
	return &eventSink{events: make(map[string][]arenadto.Event)}
}

func (s *eventSink) Send(identity string, evt arenadto.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[identity] = append(s.events[identity], evt)
}

func (s *eventSink) last(identity string) (arenadto.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evts := s.events[identity]
	if len(evts) == 0 {
		return arenadto.Event{}, false
	}
	return evts[len(evts)-1], true
}

func (s *eventSink) count(identity, typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events[identity] {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.RedisStore, *eventSink, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	store, err := ledger.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("redis store: %v", err)
	}
	repo := record.NewMemoryRepository()
	l := ledger.New(store, repo)
	levels, err := settle.LoadLevelTable("")
	if err != nil {
		t.Fatalf("level table: %v", err)
	}
	settler := settle.NewService(l, repo, levels, nil, 25, 100, 25)
	sink := newEventSink()
	coord := NewCoordinator(l, repo, settler, sink, 1_000_000)
	cleanup := func() {
		store.Close()
		mr.Close()
	}
	return coord, store, sink, cleanup
}

func seed(t *testing.T, store *ledger.RedisStore, identity string, balance int64) {
	t.Helper()
	if err := store.Seed(context.Background(), identity, balance); err != nil {
		t.Fatalf("seed %s: %v", identity, err)
	}
}

func TestFindMatchPairsSameStakeFIFO(t *testing.T) {
	coord, store, sink, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "alice", 500)
	seed(t, store, "bob", 500)

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if got := sink.count("alice", arenadto.EvWaiting); got != 1 {
		t.Fatalf("expected waiting event, got %d", got)
	}
	if coord.QueueDepth(100) != 1 {
		t.Fatalf("queue depth = %d, want 1", coord.QueueDepth(100))
	}

	if err := coord.FindMatch(ctx, "bob", 100); err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	if coord.QueueDepth(100) != 0 {
		t.Fatalf("pairing should drain the queue, depth %d", coord.QueueDepth(100))
	}
	if got := sink.count("alice", arenadto.EvMatchFound); got != 1 {
		t.Fatalf("alice matchFound = %d, want 1", got)
	}
	if got := sink.count("bob", arenadto.EvMatchFound); got != 1 {
		t.Fatalf("bob matchFound = %d, want 1", got)
	}

	// first queued takes red and both stakes sit in escrow
	s := coord.SessionOf("alice")
	if s == nil || s != coord.SessionOf("bob") {
		t.Fatalf("both players should share one session")
	}
	if s.Players()[0].ID != "alice" || s.Players()[0].Color != rules.Red {
		t.Fatalf("first queued player should hold red, got %+v", s.Players())
	}
	bal, _ := store.Balance(ctx, "alice")
	if bal != 400 {
		t.Fatalf("alice balance after escrow = %d, want 400", bal)
	}
}

func TestFindMatchKeepsStakesSeparate(t *testing.T) {
	coord, store, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "alice", 500)
	seed(t, store, "bob", 500)

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if err := coord.FindMatch(ctx, "bob", 200); err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	if coord.SessionOf("alice") != nil || coord.SessionOf("bob") != nil {
		t.Fatalf("different stakes must not pair")
	}
	if coord.QueueDepth(100) != 1 || coord.QueueDepth(200) != 1 {
		t.Fatalf("both queues should hold one entry")
	}
}

func TestFindMatchRejectsDoubleQueueAndBadStake(t *testing.T) {
	coord, store, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "alice", 500)

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if err := coord.FindMatch(ctx, "alice", 100); !errors.Is(err, ErrAlreadyBusy) {
		t.Fatalf("expected ErrAlreadyBusy, got %v", err)
	}
	if err := coord.FindMatch(ctx, "carol", -5); !errors.Is(err, ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake for negative stake, got %v", err)
	}
	if err := coord.FindMatch(ctx, "carol", 2_000_000); !errors.Is(err, ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake above cap, got %v", err)
	}
}

func TestFindMatchRejectsInsufficientBalanceUpfront(t *testing.T) {
	coord, store, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "broke", 50)

	if err := coord.FindMatch(ctx, "broke", 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if coord.QueueDepth(100) != 0 {
		t.Fatalf("rejected identity must not hold a queue entry")
	}
}

func TestFailedEscrowReleasesBothPlayers(t *testing.T) {
	coord, store, sink, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "rich", 500)
	seed(t, store, "poor", 100)

	if err := coord.FindMatch(ctx, "poor", 100); err != nil {
		t.Fatalf("queue poor: %v", err)
	}
	// balance drains while the entry waits; formation re-validates
	seed(t, store, "poor", 10)
	if err := coord.FindMatch(ctx, "rich", 100); err != nil {
		t.Fatalf("queue rich: %v", err)
	}

	if coord.SessionOf("rich") != nil {
		t.Fatalf("escrow failure must not start a session")
	}
	bal, _ := store.Balance(ctx, "rich")
	if bal != 500 {
		t.Fatalf("rich should be made whole, balance %d", bal)
	}
	evt, ok := sink.last("poor")
	if !ok || evt.Type != arenadto.EvError {
		t.Fatalf("expected error event for poor, got %+v", evt)
	}

	// both can immediately requeue
	if err := coord.FindMatch(ctx, "rich", 100); err != nil {
		t.Fatalf("requeue rich: %v", err)
	}
	if err := coord.FindMatch(ctx, "poor", 0); err != nil {
		t.Fatalf("requeue poor at zero stake: %v", err)
	}
}

func TestCancelFindMatch(t *testing.T) {
	coord, store, _, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "alice", 500)
	seed(t, store, "bob", 500)

	// cancelling with no entry silently succeeds
	coord.CancelFindMatch("alice")

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	coord.CancelFindMatch("alice")
	if coord.QueueDepth(100) != 0 {
		t.Fatalf("cancel should empty the queue")
	}

	// a later arrival waits instead of pairing with the cancelled entry
	if err := coord.FindMatch(ctx, "bob", 100); err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	if coord.SessionOf("bob") != nil {
		t.Fatalf("bob paired with a cancelled entry")
	}
}

// stalledStore parks the first balance mutation until released, holding
// match formation inside its escrow window.
type stalledStore struct {
	inner   *ledger.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStalledStore(inner *ledger.MemoryStore) *stalledStore {
	return &stalledStore{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *stalledStore) Balance(ctx context.Context, identity string) (int64, error) {
	return s.inner.Balance(ctx, identity)
}

func (s *stalledStore) Adjust(ctx context.Context, identity string, delta int64) (int64, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.inner.Adjust(ctx, identity, delta)
}

func newStalledCoordinator(t *testing.T) (*Coordinator, *stalledStore, *record.MemoryRepository, *eventSink) {
	t.Helper()
	mem := ledger.NewMemoryStore(0)
	mem.Seed("alice", 1000)
	mem.Seed("bob", 1000)
	store := newStalledStore(mem)
	repo := record.NewMemoryRepository()
	l := ledger.New(store, repo)
	levels, err := settle.LoadLevelTable("")
	if err != nil {
		t.Fatalf("level table: %v", err)
	}
	settler := settle.NewService(l, repo, levels, nil, 25, 100, 25)
	sink := newEventSink()
	return NewCoordinator(l, repo, settler, sink, 1_000_000), store, repo, sink
}

func TestDisconnectDuringEscrowForfeitsAfterFormation(t *testing.T) {
	coord, store, _, sink := newStalledCoordinator(t)
	ctx := context.Background()

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- coord.FindMatch(ctx, "bob", 100) }()

	// bob vanishes while the pairing is still escrowing the stakes
	<-store.entered
	coord.HandleDisconnect(ctx, "bob")
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("queue bob: %v", err)
	}

	if bal, _ := store.Balance(ctx, "alice"); bal != 1100 {
		t.Fatalf("alice should win the pot, balance %d", bal)
	}
	if bal, _ := store.Balance(ctx, "bob"); bal != 900 {
		t.Fatalf("bob should stay debited, balance %d", bal)
	}
	if got := sink.count("alice", arenadto.EvGameOver); got != 1 {
		t.Fatalf("alice gameOver = %d, want 1", got)
	}
	if coord.SessionOf("alice") != nil || coord.SessionOf("bob") != nil {
		t.Fatalf("forfeited session should be unregistered")
	}
	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("alice requeue: %v", err)
	}
}

func TestBothDisconnectDuringEscrowCancelsAndRefunds(t *testing.T) {
	coord, store, repo, _ := newStalledCoordinator(t)
	ctx := context.Background()

	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- coord.FindMatch(ctx, "bob", 100) }()

	<-store.entered
	coord.HandleDisconnect(ctx, "alice")
	coord.HandleDisconnect(ctx, "bob")
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("queue bob: %v", err)
	}

	for _, id := range []string{"alice", "bob"} {
		if bal, _ := store.Balance(ctx, id); bal != 1000 {
			t.Fatalf("%s should be refunded, balance %d", id, bal)
		}
	}
	refunds := 0
	var matchID string
	for _, e := range repo.LedgerEntries() {
		if e.Reason == domain.ReasonRefund {
			refunds++
			matchID = e.MatchID
		}
	}
	if refunds != 2 {
		t.Fatalf("refund entries = %d, want 2", refunds)
	}
	rec := repo.MatchByID(matchID)
	if rec == nil || rec.EndReason != domain.EndCancelled || rec.Winner != "" {
		t.Fatalf("match should be finalized cancelled with no winner, got %+v", rec)
	}
	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("alice requeue: %v", err)
	}
}

func TestPrivateRoomLifecycle(t *testing.T) {
	coord, store, sink, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "host", 500)
	seed(t, store, "guest", 500)

	code, err := coord.CreatePrivateRoom(ctx, "host", 50)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !strings.HasPrefix(code, "RM-") || len(code) != 9 {
		t.Fatalf("unexpected room code %q", code)
	}
	if coord.OpenRooms() != 1 {
		t.Fatalf("open rooms = %d, want 1", coord.OpenRooms())
	}

	if _, err := coord.CreatePrivateRoom(ctx, "host", 50); !errors.Is(err, ErrAlreadyBusy) {
		t.Fatalf("host should not open a second room, got %v", err)
	}
	if err := coord.JoinPrivateRoom(ctx, "host", code); !errors.Is(err, ErrSelfMatch) {
		t.Fatalf("expected ErrSelfMatch, got %v", err)
	}
	if err := coord.JoinPrivateRoom(ctx, "guest", "RM-XXXXXX"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	if err := coord.JoinPrivateRoom(ctx, "guest", code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if coord.OpenRooms() != 0 {
		t.Fatalf("joined room should be consumed")
	}
	s := coord.SessionOf("host")
	if s == nil || s.Players()[0].ID != "host" {
		t.Fatalf("host should hold red in the room match")
	}
	if got := sink.count("guest", arenadto.EvMatchFound); got != 1 {
		t.Fatalf("guest matchFound = %d, want 1", got)
	}

	// room is single use
	if err := coord.JoinPrivateRoom(ctx, "late", code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("consumed room should be gone, got %v", err)
	}
}

func TestDisconnectClearsQueueRoomAndMatch(t *testing.T) {
	coord, store, sink, cleanup := newTestCoordinator(t)
	defer cleanup()
	ctx := context.Background()
	seed(t, store, "alice", 500)
	seed(t, store, "bob", 500)
	seed(t, store, "carol", 500)

	// queued identity: entry evaporates
	if err := coord.FindMatch(ctx, "carol", 100); err != nil {
		t.Fatalf("queue carol: %v", err)
	}
	coord.HandleDisconnect(ctx, "carol")
	if coord.QueueDepth(100) != 0 {
		t.Fatalf("disconnect should drop the queue entry")
	}

	// hosting identity: room evaporates
	if _, err := coord.CreatePrivateRoom(ctx, "carol", 50); err != nil {
		t.Fatalf("create room: %v", err)
	}
	coord.HandleDisconnect(ctx, "carol")
	if coord.OpenRooms() != 0 {
		t.Fatalf("disconnect should close the hosted room")
	}

	// playing identity: opponent wins the pot
	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if err := coord.FindMatch(ctx, "bob", 100); err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	coord.HandleDisconnect(ctx, "bob")

	bal, _ := store.Balance(ctx, "alice")
	if bal != 600 {
		t.Fatalf("alice should hold 600 after forfeit, got %d", bal)
	}
	if got := sink.count("alice", arenadto.EvGameOver); got != 1 {
		t.Fatalf("alice gameOver = %d, want 1", got)
	}
	if coord.SessionOf("alice") != nil {
		t.Fatalf("finished session should be unregistered")
	}

	// both identities are free again
	if err := coord.FindMatch(ctx, "alice", 100); err != nil {
		t.Fatalf("alice requeue: %v", err)
	}
}
