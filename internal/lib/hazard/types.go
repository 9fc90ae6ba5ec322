package hazard

import (
	"time"

	"github.com/google/uuid"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
)

// Hazard is a user-reported road hazard. Records are immutable once stored
// and expire after the store's retention window.
type Hazard struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is an inbound hazard submission prior to persistence
type Report struct {
	Type      string   `json:"type" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Location  string   `json:"location,omitempty" validate:"max=256"`
}

// New builds a stored hazard from a validated report
func New(r Report, now time.Time) Hazard {
	lat, lon := *r.Latitude, *r.Longitude
	return Hazard{
		ID:        uuid.NewString(),
		Type:      r.Type,
		Latitude:  &lat,
		Longitude: &lon,
		Location:  r.Location,
		Timestamp: now.UTC(),
	}
}

// Point returns the hazard's coordinate, or false if either component is missing
func (h Hazard) Point() (geo.Point, bool) {
	if h.Latitude == nil || h.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: *h.Latitude, Longitude: *h.Longitude}, true
}

// IsNear reports whether p lies strictly within thresholdMeters of the hazard
func (h Hazard) IsNear(p geo.Point, thresholdMeters float64) bool {
	hp, ok := h.Point()
	if !ok {
		return false
	}
	return geo.IsNear(hp, p, thresholdMeters)
}

// ExpiresAt returns when the hazard leaves the store
func (h Hazard) ExpiresAt(retention time.Duration) time.Time {
	return h.Timestamp.Add(retention)
}

// Float returns a pointer to v, for building reports and fixtures
func Float(v float64) *float64 {
	return &v
}
