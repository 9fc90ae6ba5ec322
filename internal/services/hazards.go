package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
	"github.com/dpup/hazards.ersn.net/server/internal/store"
)

// Broadcaster relays alert events to connected sessions
type Broadcaster interface {
	Broadcast(ctx context.Context, event alerts.AlertEvent) error
}

// HazardService coordinates reporting, listing and route correlation of hazards
type HazardService struct {
	store          store.Store
	correlator     *routing.Correlator
	enhancer       alerts.MessageEnhancer
	enhanceTimeout time.Duration
	storeTimeout   time.Duration

	mu          sync.RWMutex
	broadcaster Broadcaster
}

// NewHazardService creates a new HazardService. enhancer may be nil. Every
// store call is bounded by storeTimeout.
func NewHazardService(store store.Store, correlator *routing.Correlator, enhancer alerts.MessageEnhancer, enhanceTimeout, storeTimeout time.Duration) *HazardService {
	if enhanceTimeout <= 0 {
		enhanceTimeout = 5 * time.Second
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &HazardService{
		store:          store,
		correlator:     correlator,
		enhancer:       enhancer,
		enhanceTimeout: enhanceTimeout,
		storeTimeout:   storeTimeout,
	}
}

// SetBroadcaster attaches the real-time channel new reports are announced on
func (s *HazardService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Report validates and stores a hazard, then broadcasts it. Broadcast and
// enhancement failures are logged; the stored hazard is still returned.
func (s *HazardService) Report(ctx context.Context, report hazard.Report) (hazard.Hazard, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	h, err := s.store.Create(storeCtx, report)
	cancel()
	if err != nil {
		return hazard.Hazard{}, err
	}

	logging.Infow(ctx, "Hazard reported", "id", h.ID, "type", h.Type, "severity", hazard.Classify(h.Type))

	event, err := alerts.NewAlertEvent(h)
	if err != nil {
		logging.Errorw(ctx, "Failed to build alert event", "id", h.ID, "error", err)
		return h, nil
	}

	if s.enhancer != nil {
		enhanceCtx, cancel := context.WithTimeout(ctx, s.enhanceTimeout)
		summary, err := s.enhancer.Enhance(enhanceCtx, event)
		cancel()
		if err != nil {
			logging.Warnw(ctx, "Alert enhancement failed, using plain message", "id", h.ID, "error", err)
		} else {
			event.Summary = summary
		}
	}

	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()

	if b != nil {
		if err := b.Broadcast(ctx, event); err != nil {
			logging.Warnw(ctx, "Hazard broadcast failed", "id", h.ID, "error", err)
		}
	}

	return h, nil
}

// List returns live hazards in store order. A store timeout is a fetch failure.
func (s *HazardService) List(ctx context.Context) ([]hazard.Hazard, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	hazards, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hazards: %w", err)
	}
	return hazards, nil
}

// Correlate fetches live hazards and correlates them with route. If the
// fetch fails the correlator is not run and the error is returned.
func (s *HazardService) Correlate(ctx context.Context, route routing.Route) (routing.Correlation, error) {
	hazards, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.correlator.Correlate(ctx, route, hazards), nil
}
