package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

// AlertEvent is the transient notification broadcast when a hazard is reported
type AlertEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Location   string    `json:"location,omitempty"`
	Message    string    `json:"message"`
	Summary    string    `json:"summary,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// NewAlertEvent builds the broadcast event for a stored hazard
func NewAlertEvent(h hazard.Hazard) (AlertEvent, error) {
	p, ok := h.Point()
	if !ok {
		return AlertEvent{}, errors.New("hazard has no coordinates")
	}
	return AlertEvent{
		ID:         h.ID,
		Type:       h.Type,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Location:   h.Location,
		Message:    FormatMessage(h.Type, p),
		ReportedAt: h.Timestamp,
	}, nil
}

// FormatMessage renders the canonical alert text, e.g.
// "ACCIDENT reported at (37.775, -122.419)"
func FormatMessage(hazardType string, p geo.Point) string {
	return fmt.Sprintf("%s reported at (%.3f, %.3f)", strings.ToUpper(hazardType), p.Latitude, p.Longitude)
}

// Point returns the event's coordinate
func (e AlertEvent) Point() geo.Point {
	return geo.Point{Latitude: e.Latitude, Longitude: e.Longitude}
}

// Text returns the enhanced summary when present, otherwise the canonical message
func (e AlertEvent) Text() string {
	if e.Summary != "" {
		return e.Summary
	}
	return e.Message
}

// MessageEnhancer rewrites an alert into a short driver-facing notice
type MessageEnhancer interface {
	// Produce a one-line summary for the event
	Enhance(ctx context.Context, event AlertEvent) (string, error)

	// Health check for the backing AI service
	HealthCheck(ctx context.Context) error
}
