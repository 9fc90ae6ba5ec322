package realtime

import (
	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// Inbound message types
const (
	MsgLocation            = "location"
	MsgManualLocation      = "manual_location"
	MsgClearManualLocation = "clear_manual_location"
	MsgRoute               = "route"
	MsgRefresh             = "refresh"
)

// Outbound message types
const (
	MsgWelcome      = "welcome"
	MsgHazardAlert  = "hazard_alert"
	MsgRouteHazards = "route_hazards"
	MsgError        = "error"
)

// ClientMessage is a message sent by a connected client
type ClientMessage struct {
	Type        string     `json:"type"`
	Latitude    *float64   `json:"lat,omitempty"`
	Longitude   *float64   `json:"lng,omitempty"`
	Source      *geo.Point `json:"source,omitempty"`
	Destination *geo.Point `json:"destination,omitempty"`
}

// Envelope wraps every outbound message
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WelcomePayload is sent once after connecting
type WelcomePayload struct {
	SessionID            string  `json:"session_id"`
	AlertThresholdMeters float64 `json:"alert_threshold_meters"`
}

// AlertPayload is a proximity notification
type AlertPayload struct {
	Event          alerts.AlertEvent `json:"event"`
	Text           string            `json:"text"`
	Severity       hazard.Severity   `json:"severity"`
	Color          string            `json:"color"`
	DistanceMeters float64           `json:"distance_meters"`
}

// RouteHazardsPayload replaces the client's route overlay wholesale
type RouteHazardsPayload struct {
	Route   routing.Route       `json:"route"`
	Hazards routing.Correlation `json:"hazards"`
}

// ErrorPayload carries a user-facing error message
type ErrorPayload struct {
	Message string `json:"message"`
}
