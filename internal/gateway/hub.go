package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

// conn wraps one accepted socket. wsjson.Write is not safe for concurrent
// use, so every outbound frame goes through the mutex.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(evt arenadto.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.ws, evt)
}

// Hub is the identity-to-connection registry. Domain services push events
// through it without knowing whether the identity is still connected.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*conn)}
}

// register binds the identity to the socket. A second login supersedes the
// first; the old socket is closed.
func (h *Hub) register(identity string, ws *websocket.Conn) *conn {
	c := &conn{ws: ws}
	h.mu.Lock()
	old := h.conns[identity]
	h.conns[identity] = c
	h.mu.Unlock()
	if old != nil {
		_ = old.ws.Close(websocket.StatusPolicyViolation, "superseded by newer connection")
	}
	return c
}

// unregister detaches the socket, unless a newer one already took over.
func (h *Hub) unregister(identity string, c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[identity] != c {
		return false
	}
	delete(h.conns, identity)
	return true
}

// Send delivers one event to the identity. Delivery to a gone or stalled
// peer is logged and dropped; game state is never blocked on a slow socket.
func (h *Hub) Send(identity string, evt arenadto.Event) {
	h.mu.RLock()
	c := h.conns[identity]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if err := c.write(evt); err != nil {
		obslog.L().Debug("event_send_failed",
			zap.String("identity", identity),
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}

// LevelUp pushes the progression notification.
func (h *Hub) LevelUp(identity string, newLevel int, reward string) {
	h.Send(identity, arenadto.NewEvent(arenadto.EvLevelUp, arenadto.LevelUpEvt{
		NewLevel: newLevel,
		Reward:   reward,
	}))
}

// Connected reports whether the identity holds a live socket.
func (h *Hub) Connected(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[identity] != nil
}
