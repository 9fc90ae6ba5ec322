package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
	"github.com/dpup/hazards.ersn.net/server/internal/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "correlate":
		handleCorrelate()
	case "live":
		handleLive()
	case "distance":
		handleDistance()
	case "dispatch":
		handleDispatch()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleCorrelate() {
	fs := flag.NewFlagSet("correlate", flag.ExitOnError)
	routeFile := fs.String("route-json", "", "Path to JSON file containing a Route")
	hazardsFile := fs.String("hazards-json", "", "Path to JSON file containing an array of Hazards")
	threshold := fs.Float64("threshold", 500, "Route proximity threshold in meters")
	mode := fs.String("mode", string(routing.Grouped), "Segment mode: grouped or contiguous")

	fs.Parse(os.Args[2:])

	if *routeFile == "" || *hazardsFile == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-correlator correlate --route-json route.json --hazards-json hazards.json")
		fmt.Println("  test-correlator correlate --route-json route.json --hazards-json hazards.json --mode contiguous")
		fmt.Println("")
		printSampleFiles()
		os.Exit(1)
	}

	var route routing.Route
	readJSON(*routeFile, &route)

	var hazards []hazard.Hazard
	readJSON(*hazardsFile, &hazards)

	correlator := routing.NewCorrelator(*threshold, routing.SegmentMode(*mode))
	fmt.Printf("Correlating %d hazard(s) with a %d point route (threshold %.0fm, %s)...\n\n",
		len(hazards), len(route.Points), *threshold, *mode)

	printCorrelation(correlator.Correlate(context.Background(), route, hazards))
}

func handleLive() {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	source := fs.String("source", "38.067400,-120.540200", "Source coordinates (lat,lon)")
	dest := fs.String("dest", "38.139117,-120.456111", "Destination coordinates (lat,lon)")
	hazardsFile := fs.String("hazards-json", "", "Optional path to JSON file containing an array of Hazards")

	fs.Parse(os.Args[2:])

	cfg, err := config.Load(nil, ".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	src := parsePoint("source", *source)
	dst := parsePoint("dest", *dest)

	provider, name := services.NewRoutingProvider(&cfg.Routing)
	routes := services.NewRouteService(provider, name, nil, &cfg.Routing)

	fmt.Printf("Fetching route from %s...\n", name)
	route, err := routes.GetRoute(context.Background(), src, dst)
	if err != nil {
		log.Fatalf("Route fetch failed: %v", err)
	}
	fmt.Printf("✅ Route: %d points, %.2f km, %.1f minutes\n\n",
		len(route.Points), route.DistanceMeters/1000, route.DurationSecs/60)

	var hazards []hazard.Hazard
	if *hazardsFile != "" {
		readJSON(*hazardsFile, &hazards)
	}

	correlator := routing.NewCorrelator(cfg.Proximity.RouteThresholdMeters, routing.SegmentMode(cfg.Proximity.SegmentMode))
	printCorrelation(correlator.Correlate(context.Background(), route, hazards))
}

func handleDistance() {
	fs := flag.NewFlagSet("distance", flag.ExitOnError)
	from := fs.String("from", "", "First point (lat,lon)")
	to := fs.String("to", "", "Second point (lat,lon)")
	threshold := fs.Float64("threshold", 500, "Proximity threshold in meters")

	fs.Parse(os.Args[2:])

	if *from == "" || *to == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-correlator distance --from 38.0674,-120.5402 --to 38.1391,-120.4561")
		os.Exit(1)
	}

	var lat1, lon1, lat2, lon2 float64
	if _, err := fmt.Sscanf(*from, "%f,%f", &lat1, &lon1); err != nil {
		log.Fatalf("Invalid from coordinates: %v", err)
	}
	if _, err := fmt.Sscanf(*to, "%f,%f", &lat2, &lon2); err != nil {
		log.Fatalf("Invalid to coordinates: %v", err)
	}

	d, err := geo.NewGeoUtils().DistanceFromCoords(lat1, lon1, lat2, lon2)
	if err != nil {
		log.Fatalf("Distance failed: %v", err)
	}

	fmt.Printf("Distance: %.2f meters (%.2f miles)\n", d, d*0.000621371)
	fmt.Printf("Within %.0fm: %t\n", *threshold, d < *threshold)
}

func handleDispatch() {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	hazardType := fs.String("type", "accident", "Hazard type")
	at := fs.String("at", "", "Hazard location (lat,lon)")
	recipient := fs.String("recipient", "", "Recipient location (lat,lon)")
	threshold := fs.Float64("threshold", 2000, "Personal alert threshold in meters")

	fs.Parse(os.Args[2:])

	if *at == "" || *recipient == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-correlator dispatch --type accident --at 0,0.0135 --recipient 0,0")
		os.Exit(1)
	}

	p := parsePoint("at", *at)
	r := parsePoint("recipient", *recipient)

	event, err := alerts.NewAlertEvent(hazard.Hazard{
		ID:        "cli",
		Type:      *hazardType,
		Latitude:  hazard.Float(p.Latitude),
		Longitude: hazard.Float(p.Longitude),
	})
	if err != nil {
		log.Fatalf("Error building event: %v", err)
	}

	dispatcher := alerts.NewDispatcher(*threshold)
	fmt.Printf("Message: %s\n", event.Text())
	fmt.Printf("Severity: %s\n", hazard.Classify(event.Type))
	fmt.Printf("Distance: %.2f meters\n", geo.Distance(p, r))
	fmt.Printf("Notify: %t\n", dispatcher.ShouldNotify(event, r))
}

func printCorrelation(correlation routing.Correlation) {
	if len(correlation) == 0 {
		fmt.Println("No hazards near the route.")
		return
	}

	geoUtils := geo.NewGeoUtils()
	fmt.Printf("RELEVANT HAZARDS: %d\n", len(correlation))
	for i, hs := range correlation {
		fmt.Printf("  %d. %s [%s/%s] %.0fm from route, %d segment(s)\n",
			i+1, hs.Hazard.Type, hs.Severity, hs.Color, hs.DistanceToRoute, len(hs.Segments))
		for j, seg := range hs.Segments {
			fmt.Printf("       segment %d: %d points, %s\n", j+1, len(seg.Points), geoUtils.EncodePolyline(seg.Points))
		}
	}
}

func readJSON(path string, v interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Fatalf("Error parsing %s: %v", path, err)
	}
}

func parsePoint(name, s string) geo.Point {
	var lat, lon float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lon); err != nil {
		log.Fatalf("Invalid %s coordinates: %v", name, err)
	}
	p, err := geo.NewPoint(lat, lon)
	if err != nil {
		log.Fatalf("Invalid %s coordinates: %v", name, err)
	}
	return p
}

func printUsage() {
	fmt.Println("Route hazard correlation test tool")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  test-correlator <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  correlate   Correlate hazards from a file with a route from a file")
	fmt.Println("  live        Fetch a route from the configured provider and correlate")
	fmt.Println("  distance    Great-circle distance between two points")
	fmt.Println("  dispatch    Whether a recipient would be notified of a hazard")
	fmt.Println("  help        Show this help")
}

func printSampleFiles() {
	fmt.Println("Sample route.json:")
	fmt.Println(`  {"points": [{"lat": 0, "lng": 0}, {"lat": 0, "lng": 0.004}, {"lat": 0, "lng": 0.008}]}`)
	fmt.Println("")
	fmt.Println("Sample hazards.json:")
	fmt.Println(`  [{"id": "h1", "type": "accident", "latitude": 0, "longitude": 0.006}]`)
}
