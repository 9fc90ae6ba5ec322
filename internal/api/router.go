package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Paths served by the router, registered individually with the server
var Paths = []string{
	"/api/hazards",
	"/api/traffic",
	"/api/traffic.kml",
	"/api/geocode",
	"/api/health",
	"/ws",
}

// NewRouter wires the API handlers. ws serves websocket upgrades at /ws and
// limiter, if non-nil, throttles hazard submissions.
func NewRouter(h *Handler, ws http.Handler, limiter *RateLimiter) *chi.Mux {
	r := chi.NewMux()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Route("/hazards", func(hr chi.Router) {
			hr.Get("/", h.ListHazards)
			if limiter != nil {
				hr.With(limiter.Middleware).Post("/", h.ReportHazard)
			} else {
				hr.Post("/", h.ReportHazard)
			}
		})
		api.Get("/traffic", h.Traffic)
		api.Get("/traffic.kml", h.TrafficKML)
		api.Get("/geocode", h.Geocode)
		api.Get("/health", h.Health)
	})

	if ws != nil {
		r.Handle("/ws", ws)
	}
	return r
}
