// Package api exposes the hazard, traffic and geocoding HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dpup/hazards.ersn.net/server/internal/clients/nominatim"
	"github.com/dpup/hazards.ersn.net/server/internal/export"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

const maxReportBytes = 16 << 10

// Client-facing messages
const (
	msgReported        = "Hazard reported successfully!"
	msgInvalidBody     = "Invalid request body"
	msgInternal        = "Internal server error"
	msgMissingParams   = "Missing required query parameters"
	msgInvalidCoords   = "Invalid coordinates provided"
	msgTrafficFailed   = "Failed to fetch traffic data"
	msgNotFound        = "Destination not found."
	msgGeocodingFailed = "Geocoding service unavailable"
)

// Hazards reports, lists and correlates hazards
type Hazards interface {
	Report(ctx context.Context, report hazard.Report) (hazard.Hazard, error)
	List(ctx context.Context) ([]hazard.Hazard, error)
	Correlate(ctx context.Context, route routing.Route) (routing.Correlation, error)
}

// Routes fetches driving routes
type Routes interface {
	GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error)
}

// Geocoder resolves free-text places
type Geocoder interface {
	Search(ctx context.Context, query string) ([]nominatim.Place, error)
}

// SessionCounter reports connected real-time sessions
type SessionCounter interface {
	SessionCount() int
}

// Handler serves the HTTP API
type Handler struct {
	hazards  Hazards
	routes   Routes
	geocoder Geocoder
	sessions SessionCounter
	now      func() time.Time
}

// NewHandler creates a Handler. sessions may be nil.
func NewHandler(hazards Hazards, routes Routes, geocoder Geocoder, sessions SessionCounter) *Handler {
	return &Handler{
		hazards:  hazards,
		routes:   routes,
		geocoder: geocoder,
		sessions: sessions,
		now:      time.Now,
	}
}

// ReportResponse is returned by POST /api/hazards
type ReportResponse struct {
	Message string        `json:"message"`
	Hazard  hazard.Hazard `json:"hazard"`
}

// HazardsResponse is returned by GET /api/hazards
type HazardsResponse struct {
	Hazards []hazard.Hazard `json:"hazards"`
}

// TrafficResponse is returned by GET /api/traffic
type TrafficResponse struct {
	Route           routing.Route             `json:"route"`
	Hazards         routing.Correlation       `json:"hazards"`
	BlockedSegments []routing.AffectedSegment `json:"blockedSegments"`
}

// GeocodeResponse is returned by GET /api/geocode
type GeocodeResponse struct {
	Results []nominatim.Place `json:"results"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
	Sessions int       `json:"sessions"`
}

// ReportHazard handles POST /api/hazards
func (h *Handler) ReportHazard(w http.ResponseWriter, r *http.Request) {
	var report hazard.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&report); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}

	created, err := h.hazards.Report(r.Context(), report)
	if err != nil {
		var verr *hazard.ValidationError
		if errors.As(err, &verr) {
			writeError(w, r, http.StatusBadRequest, verr.Error())
			return
		}
		logging.Errorw(r.Context(), "Failed to store hazard", "error", err, "request_id", chimw.GetReqID(r.Context()))
		writeError(w, r, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, r, http.StatusCreated, ReportResponse{Message: msgReported, Hazard: created})
}

// ListHazards handles GET /api/hazards
func (h *Handler) ListHazards(w http.ResponseWriter, r *http.Request) {
	hazards, err := h.hazards.List(r.Context())
	if err != nil {
		logging.Errorw(r.Context(), "Failed to list hazards", "error", err, "request_id", chimw.GetReqID(r.Context()))
		writeError(w, r, http.StatusInternalServerError, msgInternal)
		return
	}
	if hazards == nil {
		hazards = []hazard.Hazard{}
	}
	writeJSON(w, r, http.StatusOK, HazardsResponse{Hazards: hazards})
}

// Traffic handles GET /api/traffic
func (h *Handler) Traffic(w http.ResponseWriter, r *http.Request) {
	resp, status, msg := h.traffic(r)
	if status != http.StatusOK {
		writeError(w, r, status, msg)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// TrafficKML handles GET /api/traffic.kml
func (h *Handler) TrafficKML(w http.ResponseWriter, r *http.Request) {
	resp, status, msg := h.traffic(r)
	if status != http.StatusOK {
		writeError(w, r, status, msg)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="route-hazards.kml"`)
	if err := export.WriteRouteKML(w, resp.Route, resp.Hazards, h.now()); err != nil {
		logging.Errorw(r.Context(), "Failed to write KML", "error", err)
	}
}

func (h *Handler) traffic(r *http.Request) (TrafficResponse, int, string) {
	ctx := r.Context()

	source, destination, status, msg := parseEndpoints(r)
	if status != http.StatusOK {
		return TrafficResponse{}, status, msg
	}

	route, err := h.routes.GetRoute(ctx, source, destination)
	if err != nil {
		logging.Warnw(ctx, "Route fetch failed", "error", err, "request_id", chimw.GetReqID(ctx))
		return TrafficResponse{}, http.StatusBadGateway, msgTrafficFailed
	}

	correlation, err := h.hazards.Correlate(ctx, route)
	if err != nil {
		logging.Errorw(ctx, "Hazard correlation failed", "error", err, "request_id", chimw.GetReqID(ctx))
		return TrafficResponse{}, http.StatusInternalServerError, msgTrafficFailed
	}
	if correlation == nil {
		correlation = routing.Correlation{}
	}

	segments := correlation.Segments()
	if segments == nil {
		segments = []routing.AffectedSegment{}
	}

	return TrafficResponse{Route: route, Hazards: correlation, BlockedSegments: segments}, http.StatusOK, ""
}

func parseEndpoints(r *http.Request) (geo.Point, geo.Point, int, string) {
	q := r.URL.Query()
	names := []string{"sourceLat", "sourceLng", "destLat", "destLng"}
	values := make([]float64, len(names))

	for i, name := range names {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return geo.Point{}, geo.Point{}, http.StatusBadRequest, msgMissingParams
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return geo.Point{}, geo.Point{}, http.StatusBadRequest, msgInvalidCoords
		}
		values[i] = v
	}

	source, err := geo.NewPoint(values[0], values[1])
	if err != nil {
		return geo.Point{}, geo.Point{}, http.StatusBadRequest, msgInvalidCoords
	}
	destination, err := geo.NewPoint(values[2], values[3])
	if err != nil {
		return geo.Point{}, geo.Point{}, http.StatusBadRequest, msgInvalidCoords
	}
	return source, destination, http.StatusOK, ""
}

// Geocode handles GET /api/geocode
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, r, http.StatusBadRequest, msgMissingParams)
		return
	}

	places, err := h.geocoder.Search(r.Context(), query)
	if err != nil {
		logging.Warnw(r.Context(), "Geocoding failed", "query", query, "error", err)
		writeError(w, r, http.StatusBadGateway, msgGeocodingFailed)
		return
	}
	if len(places) == 0 {
		writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, GeocodeResponse{Results: places})
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Time: h.now().UTC()}
	if h.sessions != nil {
		resp.Sessions = h.sessions.SessionCount()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorw(r.Context(), "JSON encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	writeJSON(w, r, code, map[string]string{"error": message})
}
