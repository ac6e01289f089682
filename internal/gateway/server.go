package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mintgrid/checkers-arena/internal/lobby"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/settle"
	"github.com/mintgrid/checkers-arena/pkg/arenadto"
)

// Server terminates player WebSocket connections and routes their events
// into the lobby and match layers.
type Server struct {
	httpSrv  *http.Server
	hub      *Hub
	coord    *lobby.Coordinator
	settler  *settle.Service
	verifier Verifier
}

func NewServer(addr string, verifier Verifier, hub *Hub, coord *lobby.Coordinator, settler *settle.Service) *Server {
	s := &Server{
		hub:      hub,
		coord:    coord,
		settler:  settler,
		verifier: verifier,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains with a bounded
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("gateway_listen", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// handleWS authenticates, upgrades, and runs the per-connection read loop.
// An unverified token is refused before the upgrade; no events flow on a
// refused connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		obslog.L().Error("auth_verify_error", zap.Error(err))
		http.Error(w, "auth unavailable", http.StatusBadGateway)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	if s.hub.Connected(identity) {
		obslog.L().Info("player_superseded", zap.String("identity", identity))
	}
	c := s.hub.register(identity, ws)
	obslog.L().Info("player_connected", zap.String("identity", identity))
	s.readLoop(r.Context(), identity, c)
}

func (s *Server) readLoop(ctx context.Context, identity string, c *conn) {
	defer func() {
		owned := s.hub.unregister(identity, c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
		// a superseded socket must not forfeit the newer session
		if owned {
			s.coord.HandleDisconnect(context.Background(), identity)
			obslog.L().Info("player_disconnected", zap.String("identity", identity))
		}
	}()

	for {
		var evt arenadto.Event
		if err := wsjson.Read(ctx, c.ws, &evt); err != nil {
			return
		}
		s.dispatch(ctx, identity, evt)
	}
}
