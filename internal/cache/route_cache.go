package cache

import (
	"fmt"
	"time"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// RouteKey identifies a route request. Coordinates are rounded to five
// decimals (about one meter), matching polyline precision.
func RouteKey(provider string, source, destination geo.Point) string {
	return fmt.Sprintf("route:%s:%.5f,%.5f:%.5f,%.5f", provider,
		source.Latitude, source.Longitude, destination.Latitude, destination.Longitude)
}

// SetRoute caches a fetched route
func (c *Cache) SetRoute(key string, route routing.Route, ttl time.Duration) error {
	return c.Set(key, route, ttl, route.Provider)
}

// GetRoute retrieves a cached route if still fresh
func (c *Cache) GetRoute(key string) (routing.Route, bool, error) {
	var route routing.Route
	found, err := c.Get(key, &route)
	return route, found, err
}
