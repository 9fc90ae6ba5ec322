package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dpup/hazards.ersn.net/server/internal/api"
	"github.com/dpup/hazards.ersn.net/server/internal/cache"
	"github.com/dpup/hazards.ersn.net/server/internal/clients/nominatim"
	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
	"github.com/dpup/hazards.ersn.net/server/internal/realtime"
	"github.com/dpup/hazards.ersn.net/server/internal/services"
	"github.com/dpup/hazards.ersn.net/server/internal/store"
)

func main() {
	ctx := context.Background()

	// Defaults, then prefab.yaml / PF__ variables, then .env and HAZARDS_ variables
	appConfig, err := config.Load(prefab.Config, ".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, time.Minute)

	hazardStore, err := store.New(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to open %s hazard store: %v", appConfig.Store.Driver, err)
	}
	defer hazardStore.Close()

	// Stores without native expiry need expired rows swept
	if sweeper, ok := hazardStore.(store.Sweeper); ok {
		sweep := services.NewPeriodicSweepService(sweeper, appConfig.Hazards.SweepInterval)
		if err := sweep.StartPeriodicSweep(ctx); err != nil {
			log.Printf("Failed to start periodic sweep: %v", err)
		}
		defer sweep.Stop()
	}

	provider, providerName := services.NewRoutingProvider(&appConfig.Routing)
	routeService := services.NewRouteService(provider, providerName, cacheInstance, &appConfig.Routing)

	correlator := routing.NewCorrelator(appConfig.Proximity.RouteThresholdMeters, routing.SegmentMode(appConfig.Proximity.SegmentMode))

	var enhancer alerts.MessageEnhancer
	if appConfig.Alerts.OpenAI.APIKey != "" {
		model := appConfig.Alerts.OpenAI.Model
		enhancer = alerts.NewCachedMessageEnhancer(alerts.NewMessageEnhancer(appConfig.Alerts.OpenAI.APIKey, model), cacheInstance)
		log.Printf("OpenAI alert summaries enabled (model: %s)", model)
	}

	hazardService := services.NewHazardService(hazardStore, correlator, enhancer, appConfig.Alerts.OpenAI.Timeout, appConfig.Store.Timeout)

	backplane, err := realtime.NewBackplane(ctx, appConfig.Realtime)
	if err != nil {
		log.Fatalf("Failed to connect %s backplane: %v", appConfig.Realtime.Backplane, err)
	}

	hub := realtime.NewHub(
		alerts.NewDispatcher(appConfig.Proximity.AlertThresholdMeters),
		routeService,
		hazardService,
		backplane,
		appConfig.Realtime,
		appConfig.Server.AllowedOrigins,
	)
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("Failed to subscribe to backplane: %v", err)
	}
	defer hub.Close()
	hazardService.SetBroadcaster(hub)

	geocoder := nominatim.NewClient(
		appConfig.Geocoding.BaseURL,
		appConfig.Geocoding.UserAgent,
		appConfig.Geocoding.Limit,
		appConfig.Geocoding.Timeout,
	)

	limiter := api.NewRateLimiter(appConfig.RateLimit.ReportsPerSecond, appConfig.RateLimit.Burst, appConfig.RateLimit.VisitorTTL)
	limiter.StartCleanup(ctx, time.Minute)

	router := api.NewRouter(api.NewHandler(hazardService, routeService, geocoder, hub), hub, limiter)

	log.Printf("Hazard alert server starting")
	log.Printf("Store: %s, routing: %s, backplane: %s", appConfig.Store.Driver, providerName, appConfig.Realtime.Backplane)
	log.Printf("Route threshold: %.0fm, alert threshold: %.0fm, retention: %s",
		appConfig.Proximity.RouteThresholdMeters, appConfig.Proximity.AlertThresholdMeters, appConfig.Hazards.Retention)

	// Server configuration (port, etc.) is loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/api/hazards", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/traffic", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/traffic.kml", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/geocode", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/health", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/ws", router.ServeHTTP),
	)

	healthpb.RegisterHealthServer(server.ServiceRegistrar(), health.NewServer())

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>hazards.ersn.net</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">hazards.ersn.net</span>

Community road hazard reports with live route and proximity alerts.

<span class="header">API Endpoints:</span>

Hazards:
  POST /api/hazards                         - Report a hazard {type, latitude, longitude, location}
  <a href="/api/hazards">GET  /api/hazards</a>                         - Hazards reported in the last two minutes

Routes:
  GET  /api/traffic?sourceLat&sourceLng&destLat&destLng     - Route with hazard segments
  GET  /api/traffic.kml?sourceLat&sourceLng&destLat&destLng - Same, as KML
  GET  /api/geocode?q=                      - Place search

Live alerts:
  WS   /ws                                  - Location updates in, hazard alerts out

  <a href="/api/health">GET  /api/health</a>                          - Health check

<span class="header">Example Usage:</span>
  curl -X POST -d '{"type":"accident","latitude":38.25,"longitude":-120.35}' https://hazards.ersn.net/api/hazards
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
