package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/hazards.ersn.net/server/internal/cache"
	"github.com/dpup/hazards.ersn.net/server/internal/clients/google"
	"github.com/dpup/hazards.ersn.net/server/internal/clients/openroute"
	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// RouteService fronts a routing provider with a timeout and a short-lived
// route cache. Every failure surfaces as routing.ErrRouteUnavailable.
type RouteService struct {
	provider     routing.Provider
	providerName string
	cache        *cache.Cache
	config       *config.RoutingConfig
}

// NewRoutingProvider builds the provider selected by cfg.Provider
func NewRoutingProvider(cfg *config.RoutingConfig) (routing.Provider, string) {
	switch cfg.Provider {
	case google.ProviderName:
		return google.NewClientWithHTTPDoer(cfg.Google.APIKey, cfg.Google.BaseURL, newHTTPClient(cfg.Timeout)), google.ProviderName
	default:
		return openroute.NewClientWithHTTPDoer(cfg.OpenRoute.APIKey, cfg.OpenRoute.BaseURL, cfg.OpenRoute.Profile, newHTTPClient(cfg.Timeout)), openroute.ProviderName
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewRouteService creates a new RouteService
func NewRouteService(provider routing.Provider, providerName string, cache *cache.Cache, config *config.RoutingConfig) *RouteService {
	return &RouteService{
		provider:     provider,
		providerName: providerName,
		cache:        cache,
		config:       config,
	}
}

// GetRoute returns a route from source to destination, serving repeated
// requests from cache within routing.cache_ttl
func (s *RouteService) GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error) {
	if !geo.IsValidCoordinate(source) || !geo.IsValidCoordinate(destination) {
		return routing.Route{}, fmt.Errorf("%w: %v", routing.ErrRouteUnavailable, geo.ErrInvalidCoordinates)
	}

	key := cache.RouteKey(s.providerName, source, destination)
	if s.cache != nil && s.config.CacheTTL > 0 {
		route, found, err := s.cache.GetRoute(key)
		if err != nil {
			logging.Warnw(ctx, "Route cache error", "key", key, "error", err)
		}
		if found {
			logging.Debugw(ctx, "Returning cached route", "key", key, "points", len(route.Points))
			return route, nil
		}
	}

	fetchCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	route, err := s.provider.GetRoute(fetchCtx, source, destination)
	if err != nil {
		logging.Warnw(ctx, "Route fetch failed", "provider", s.providerName, "error", err)
		if errors.Is(err, routing.ErrRouteUnavailable) {
			return routing.Route{}, err
		}
		return routing.Route{}, fmt.Errorf("%w: %v", routing.ErrRouteUnavailable, err)
	}
	if len(route.Points) == 0 {
		return routing.Route{}, fmt.Errorf("%w: empty route", routing.ErrRouteUnavailable)
	}

	logging.Infow(ctx, "Route fetched",
		"provider", s.providerName, "points", len(route.Points), "duration", time.Since(start))

	if s.cache != nil && s.config.CacheTTL > 0 {
		if err := s.cache.SetRoute(key, route, s.config.CacheTTL); err != nil {
			logging.Warnw(ctx, "Failed to cache route", "key", key, "error", err)
		}
	}

	return route, nil
}
