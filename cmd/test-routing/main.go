package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dpup/hazards.ersn.net/server/internal/clients/google"
	"github.com/dpup/hazards.ersn.net/server/internal/clients/openroute"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

func main() {
	var (
		providerName = flag.String("provider", "openroute", "Routing provider: openroute or google")
		apiKey       = flag.String("api-key", "", "Provider API key (or set ORS_API_KEY / GOOGLE_ROUTES_API_KEY)")
		originStr    = flag.String("origin", "38.067400,-120.540200", "Origin coordinates (lat,lon)")
		destStr      = flag.String("dest", "38.139117,-120.456111", "Destination coordinates (lat,lon)")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Routing provider test tool\n\n")
		fmt.Printf("Fetches one route from OpenRouteService or Google Routes.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  ORS_API_KEY=your_key %s\n", os.Args[0])
		fmt.Printf("  %s -provider=google -api-key=YOUR_KEY -origin=\"37.7749,-122.4194\" -dest=\"34.0522,-118.2437\"\n", os.Args[0])
		return
	}

	var provider routing.Provider
	key := *apiKey
	switch *providerName {
	case openroute.ProviderName:
		if key == "" {
			key = os.Getenv("ORS_API_KEY")
		}
		provider = openroute.NewClient(key, "", "")
	case google.ProviderName:
		if key == "" {
			key = os.Getenv("GOOGLE_ROUTES_API_KEY")
		}
		provider = google.NewClient(key)
	default:
		log.Fatalf("Unknown provider %q", *providerName)
	}
	if key == "" {
		log.Fatal("API key required. Use -api-key or the provider's environment variable")
	}

	var originLat, originLon, destLat, destLon float64
	if _, err := fmt.Sscanf(*originStr, "%f,%f", &originLat, &originLon); err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	if _, err := fmt.Sscanf(*destStr, "%f,%f", &destLat, &destLon); err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	origin := geo.Point{Latitude: originLat, Longitude: originLon}
	destination := geo.Point{Latitude: destLat, Longitude: destLon}

	fmt.Printf("Routing Provider Test (%s)\n", *providerName)
	fmt.Printf("==========================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", originLat, originLon)
	fmt.Printf("Destination: %.6f, %.6f\n\n", destLat, destLon)

	route, err := provider.GetRoute(context.Background(), origin, destination)
	if err != nil {
		if errors.Is(err, routing.ErrRouteUnavailable) {
			log.Fatalf("Route unavailable: %v", err)
		}
		log.Fatalf("GetRoute failed: %v", err)
	}

	fmt.Printf("✅ GetRoute successful!\n")
	fmt.Printf("Distance: %.2f km\n", route.DistanceMeters/1000.0)
	fmt.Printf("Duration: %.1f minutes\n", route.DurationSecs/60.0)
	fmt.Printf("Points: %d\n", len(route.Points))
	if n := len(route.Points); n > 0 {
		fmt.Printf("First point: %.5f, %.5f\n", route.Points[0].Latitude, route.Points[0].Longitude)
		fmt.Printf("Last point: %.5f, %.5f\n", route.Points[n-1].Latitude, route.Points[n-1].Longitude)
	}
}
