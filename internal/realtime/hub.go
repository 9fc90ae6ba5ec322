package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/gorilla/websocket"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

const (
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// RouteFetcher fetches driving routes
type RouteFetcher interface {
	GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error)
}

// RouteCorrelator correlates live hazards with a route
type RouteCorrelator interface {
	Correlate(ctx context.Context, route routing.Route) (routing.Correlation, error)
}

// Hub tracks connected sessions and relays alert events to them. With a
// backplane, events published on any instance reach every instance.
type Hub struct {
	dispatcher   *alerts.Dispatcher
	routes       RouteFetcher
	correlator   RouteCorrelator
	backplane    Backplane
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates a hub. backplane may be nil for single-instance delivery.
func NewHub(dispatcher *alerts.Dispatcher, routes RouteFetcher, correlator RouteCorrelator, backplane Backplane, cfg config.RealtimeConfig, allowedOrigins []string) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Hub{
		dispatcher: dispatcher,
		routes:     routes,
		correlator: correlator,
		backplane:  backplane,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		sessions:     make(map[string]*Session),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Start subscribes to the backplane, if any
func (h *Hub) Start(ctx context.Context) error {
	if h.backplane == nil {
		return nil
	}
	return h.backplane.Subscribe(ctx, func(payload []byte) {
		var event alerts.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logging.Warnw(ctx, "Discarding malformed alert payload", "error", err)
			return
		}
		h.deliver(ctx, event)
	})
}

// Broadcast relays event to every session, including the reporter's own.
// Delivery is best effort; a backplane failure falls back to local delivery.
func (h *Hub) Broadcast(ctx context.Context, event alerts.AlertEvent) error {
	if h.backplane == nil {
		h.deliver(ctx, event)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := h.backplane.Publish(ctx, payload); err != nil {
		logging.Warnw(ctx, "Backplane publish failed, delivering locally", "event", event.ID, "error", err)
		h.deliver(ctx, event)
		return err
	}
	return nil
}

func (h *Hub) deliver(ctx context.Context, event alerts.AlertEvent) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	logging.Debugw(ctx, "Delivering alert", "event", event.ID, "sessions", len(sessions))
	for _, s := range sessions {
		s.Notify(ctx, event)
	}
}

// Connect registers a new session and starts its event loop
func (h *Hub) Connect(ctx context.Context) *Session {
	s := newSession(h)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	go s.eventLoop(ctx)

	s.push(ctx, MsgWelcome, WelcomePayload{
		SessionID:            s.ID,
		AlertThresholdMeters: h.dispatcher.Threshold(),
	})
	return s
}

// Disconnect removes and closes a session
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	s.Close()
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and closes the backplane
func (h *Hub) Close() error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if h.backplane != nil {
		return h.backplane.Close()
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket session
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	// The request context ends when the handler returns; sessions outlive it
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	s := h.Connect(ctx)
	logging.Infow(ctx, "Client connected", "session", s.ID, "remote", conn.RemoteAddr().String())

	go h.writePump(ctx, s, conn)
	go func() {
		h.readPump(ctx, s, conn)
		cancel()
		h.Disconnect(s)
		logging.Infow(ctx, "Client disconnected", "session", s.ID)
	}()
}

func (h *Hub) readPump(ctx context.Context, s *Session, conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Session reader: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debugw(ctx, "WebSocket read error", "session", s.ID, "error", err)
			}
			return
		}
		s.HandleMessage(ctx, raw)
	}
}

func (h *Hub) writePump(ctx context.Context, s *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debugw(ctx, "WebSocket write error", "session", s.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
