package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

const (
	eventBuffer = 64
	seenTTL     = 10 * time.Minute
	seenPruneAt = 512
)

// State is a session's presentation state
type State struct {
	Location       *geo.Point          `json:"location,omitempty"`
	ManualLocation *geo.Point          `json:"manual_location,omitempty"`
	Route          *routing.Route      `json:"route,omitempty"`
	Hazards        routing.Correlation `json:"hazards"`
}

// EffectiveLocation returns the manual override if set, otherwise the reported location
func (s State) EffectiveLocation() (geo.Point, bool) {
	if s.ManualLocation != nil {
		return *s.ManualLocation, true
	}
	if s.Location != nil {
		return *s.Location, true
	}
	return geo.Point{}, false
}

// Session is one connected client. All state changes happen behind mu and
// route overlays are replaced wholesale after every correlation pass.
type Session struct {
	ID  string
	hub *Hub

	send      chan []byte
	events    chan alerts.AlertEvent
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state State
	seen  map[string]time.Time

	// routeGen changes whenever state.Route is replaced. passSeq numbers
	// correlation passes and applied is the newest pass written to state.
	routeGen uint64
	passSeq  uint64
	applied  uint64
}

func newSession(hub *Hub) *Session {
	return &Session{
		ID:     uuid.NewString(),
		hub:    hub,
		send:   make(chan []byte, hub.sendBuffer),
		events: make(chan alerts.AlertEvent, eventBuffer),
		done:   make(chan struct{}),
		seen:   make(map[string]time.Time),
	}
}

// Snapshot returns a copy of the session's state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notify queues an event for the session's event loop without blocking
func (s *Session) Notify(ctx context.Context, event alerts.AlertEvent) {
	select {
	case <-s.done:
	case s.events <- event:
	default:
		logging.Warnw(ctx, "Session event queue full, dropping event", "session", s.ID, "event", event.ID)
	}
}

func (s *Session) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event := <-s.events:
			s.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent applies the alert dispatch decision to event. An accepted
// event yields exactly one notification per event ID followed by a fresh
// correlation of the current route. It reports whether a notification was sent.
func (s *Session) HandleEvent(ctx context.Context, event alerts.AlertEvent) bool {
	s.mu.Lock()
	if _, dup := s.seen[event.ID]; dup {
		s.mu.Unlock()
		return false
	}
	location, ok := s.state.EffectiveLocation()
	if !ok {
		s.mu.Unlock()
		logging.Debugw(ctx, "Alert ignored, session location unknown", "session", s.ID, "event", event.ID)
		return false
	}
	if !s.hub.dispatcher.ShouldNotify(event, location) {
		s.mu.Unlock()
		logging.Debugw(ctx, "Alert outside notification radius", "session", s.ID, "event", event.ID)
		return false
	}
	s.markSeen(event.ID)
	s.mu.Unlock()

	severity := hazard.Classify(event.Type)
	s.push(ctx, MsgHazardAlert, AlertPayload{
		Event:          event,
		Text:           event.Text(),
		Severity:       severity,
		Color:          severity.Color(),
		DistanceMeters: geo.Distance(event.Point(), location),
	})

	s.refreshRoute(ctx)
	return true
}

// markSeen must be called with mu held
func (s *Session) markSeen(id string) {
	now := time.Now()
	s.seen[id] = now
	if len(s.seen) < seenPruneAt {
		return
	}
	for k, t := range s.seen {
		if now.Sub(t) > seenTTL {
			delete(s.seen, k)
		}
	}
}

// HandleMessage processes one inbound client message
func (s *Session) HandleMessage(ctx context.Context, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.pushError(ctx, "Invalid message")
		return
	}

	switch msg.Type {
	case MsgLocation, MsgManualLocation:
		if msg.Latitude == nil || msg.Longitude == nil {
			s.pushError(ctx, "Missing required fields")
			return
		}
		p, err := geo.NewPoint(*msg.Latitude, *msg.Longitude)
		if err != nil {
			s.pushError(ctx, "Invalid coordinates provided")
			return
		}
		s.mu.Lock()
		if msg.Type == MsgManualLocation {
			s.state.ManualLocation = &p
		} else {
			s.state.Location = &p
		}
		s.mu.Unlock()

	case MsgClearManualLocation:
		s.mu.Lock()
		s.state.ManualLocation = nil
		s.mu.Unlock()

	case MsgRoute:
		s.setRoute(ctx, msg)

	case MsgRefresh:
		s.refreshRoute(ctx)

	default:
		s.pushError(ctx, "Unknown message type")
	}
}

func (s *Session) setRoute(ctx context.Context, msg ClientMessage) {
	if msg.Destination == nil {
		s.pushError(ctx, "Missing required query parameters")
		return
	}

	var source geo.Point
	if msg.Source != nil {
		source = *msg.Source
	} else {
		loc, ok := s.Snapshot().EffectiveLocation()
		if !ok {
			s.pushError(ctx, "Location unknown")
			return
		}
		source = loc
	}

	if !geo.IsValidCoordinate(source) || !geo.IsValidCoordinate(*msg.Destination) {
		s.pushError(ctx, "Invalid coordinates provided")
		return
	}

	route, err := s.hub.routes.GetRoute(ctx, source, *msg.Destination)
	if err != nil {
		logging.Warnw(ctx, "Session route fetch failed", "session", s.ID, "error", err)
		s.pushError(ctx, "Failed to fetch traffic data")
		return
	}

	s.mu.Lock()
	s.state.Route = &route
	s.state.Hazards = nil
	s.routeGen++
	s.mu.Unlock()

	s.refreshRoute(ctx)
}

// refreshRoute re-runs correlation for the current route and pushes the
// result. On failure the previous state is kept. A pass whose route was
// replaced, or that finishes after a newer pass, is discarded.
func (s *Session) refreshRoute(ctx context.Context) {
	s.mu.Lock()
	if s.state.Route == nil {
		s.mu.Unlock()
		return
	}
	route := *s.state.Route
	gen := s.routeGen
	s.passSeq++
	seq := s.passSeq
	s.mu.Unlock()

	correlation, err := s.hub.correlator.Correlate(ctx, route)
	if err != nil {
		logging.Warnw(ctx, "Hazard fetch failed, keeping previous overlay", "session", s.ID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.routeGen || seq < s.applied {
		logging.Debugw(ctx, "Discarding stale correlation pass", "session", s.ID)
		return
	}
	s.applied = seq
	s.state.Hazards = correlation
	s.push(ctx, MsgRouteHazards, RouteHazardsPayload{Route: route, Hazards: correlation})
}

func (s *Session) pushError(ctx context.Context, message string) {
	s.push(ctx, MsgError, ErrorPayload{Message: message})
}

func (s *Session) push(ctx context.Context, msgType string, data interface{}) {
	b, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		logging.Errorw(ctx, "Failed to marshal session message", "type", msgType, "error", err)
		return
	}

	select {
	case <-s.done:
	case s.send <- b:
	default:
		logging.Warnw(ctx, "Session send buffer full, dropping message", "session", s.ID, "type", msgType)
	}
}

// Close stops the session's loops; safe to call more than once
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
