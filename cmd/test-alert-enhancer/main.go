package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "enhance-alert":
		handleEnhanceAlert()
	case "test-connection":
		handleTestConnection()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleEnhanceAlert() {
	fs := flag.NewFlagSet("enhance-alert", flag.ExitOnError)
	hazardType := fs.String("type", "", "Hazard type, e.g. accident, roadblock, debris")
	lat := fs.Float64("lat", 38.2552, "Hazard latitude")
	lon := fs.Float64("lon", -120.3510, "Hazard longitude")
	location := fs.String("location", "", "Optional free-text location")
	apiKey := fs.String("api-key", os.Getenv("HAZARDS_ALERTS__OPENAI__API_KEY"), "OpenAI API key (or set HAZARDS_ALERTS__OPENAI__API_KEY env var)")
	model := fs.String("model", "gpt-4o-mini", "OpenAI model to use")
	timeout := fs.Int("timeout", 30, "Timeout in seconds")

	fs.Parse(os.Args[2:])

	if *hazardType == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-alert-enhancer enhance-alert --type accident --location \"Hwy 4 at Arnold\"")
		fmt.Println("  test-alert-enhancer enhance-alert --type roadblock --lat 38.07 --lon -120.54 --api-key sk-xxx")
		os.Exit(1)
	}

	if *apiKey == "" {
		log.Fatal("OpenAI API key is required. Set HAZARDS_ALERTS__OPENAI__API_KEY environment variable or use --api-key flag")
	}

	event, err := alerts.NewAlertEvent(hazard.Hazard{
		ID:        uuid.NewString(),
		Type:      *hazardType,
		Latitude:  hazard.Float(*lat),
		Longitude: hazard.Float(*lon),
		Location:  *location,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Fatalf("Error building alert event: %v", err)
	}

	enhancer := alerts.NewMessageEnhancer(*apiKey, *model)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("Enhancing alert...\n")
	fmt.Printf("  Message: %s\n", event.Message)
	if event.Location != "" {
		fmt.Printf("  Location: %s\n", event.Location)
	}
	fmt.Printf("  Severity: %s\n", hazard.Classify(event.Type))
	fmt.Printf("  Using model: %s\n\n", *model)

	start := time.Now()
	summary, err := enhancer.Enhance(ctx, event)
	if err != nil {
		log.Fatalf("Error enhancing alert: %v", err)
	}

	fmt.Printf("✅ Alert enhanced in %s\n\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("SUMMARY:\n")
	fmt.Printf("  %s\n", summary)
	fmt.Printf("  Length: %d characters\n", len(summary))
}

func handleTestConnection() {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	apiKey := fs.String("api-key", os.Getenv("HAZARDS_ALERTS__OPENAI__API_KEY"), "OpenAI API key to test")
	model := fs.String("model", "gpt-4o-mini", "OpenAI model to test")
	timeout := fs.Int("timeout", 10, "Timeout in seconds")

	fs.Parse(os.Args[2:])

	if *apiKey == "" {
		log.Fatal("OpenAI API key is required. Set HAZARDS_ALERTS__OPENAI__API_KEY environment variable or use --api-key flag")
	}

	enhancer := alerts.NewMessageEnhancer(*apiKey, *model)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("Testing OpenAI API connection...\n")
	fmt.Printf("  Model: %s\n", *model)
	fmt.Printf("  Timeout: %d seconds\n\n", *timeout)

	if err := enhancer.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Connection test failed: %v\n", err)

		errStr := err.Error()
		if strings.Contains(errStr, "401") {
			fmt.Printf("\nThis looks like an authentication error. Check the API key and account credits.\n")
		} else if strings.Contains(errStr, "429") {
			fmt.Printf("\nThis looks like a rate limit error. Wait a moment and try again.\n")
		}
		os.Exit(1)
	}

	fmt.Printf("✅ Connection test successful!\n")
}

func printUsage() {
	fmt.Printf(`test-alert-enhancer - hazard alert summary testing tool

USAGE:
    test-alert-enhancer <command> [options]

COMMANDS:
    enhance-alert       Summarize a single hazard alert
    test-connection     Test OpenAI API connectivity and authentication
    help                Show this help message

EXAMPLES:
    test-alert-enhancer enhance-alert --type accident --location "Hwy 4 at Arnold"
    test-alert-enhancer test-connection --api-key sk-xxx

ENVIRONMENT VARIABLES:
    HAZARDS_ALERTS__OPENAI__API_KEY   OpenAI API key (alternative to --api-key flag)
`)
}
