package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// ProviderName identifies routes fetched from Google Routes API
const ProviderName = "google"

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to Google Routes API v2
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
	geoUtils   geo.GeoUtils
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://routes.googleapis.com", &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with a custom base URL and HTTP implementation
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = "https://routes.googleapis.com"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: doer,
		geoUtils:   geo.NewGeoUtils(),
	}
}

// GetRoute fetches a driving route between two points. Any failure wraps
// routing.ErrRouteUnavailable.
func (c *Client) GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error) {
	route, err := c.computeRoutes(ctx, source, destination)
	if err != nil {
		return routing.Route{}, fmt.Errorf("%w: google: %v", routing.ErrRouteUnavailable, err)
	}
	return route, nil
}

func (c *Client) computeRoutes(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	requestBody := map[string]interface{}{
		"origin": map[string]interface{}{
			"location": map[string]interface{}{
				"latLng": map[string]interface{}{
					"latitude":  origin.Latitude,
					"longitude": origin.Longitude,
				},
			},
		},
		"destination": map[string]interface{}{
			"location": map[string]interface{}{
				"latLng": map[string]interface{}{
					"latitude":  destination.Latitude,
					"longitude": destination.Longitude,
				},
			},
		},
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_AWARE",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to create request: %w", err)
	}

	// Field mask is required or the API rejects the request
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return routing.Route{}, fmt.Errorf("rate limit exceeded (3K QPM)")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return routing.Route{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response GoogleRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return routing.Route{}, fmt.Errorf("no routes found in response")
	}

	return c.processRouteResponse(response.Routes[0])
}

// processRouteResponse converts a Google route into a routing.Route
func (c *Client) processRouteResponse(route GoogleRoute) (routing.Route, error) {
	durationSeconds, err := parseDuration(route.Duration)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to parse duration: %w", err)
	}

	points, err := c.geoUtils.DecodePolyline(route.Polyline.EncodedPolyline)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode polyline: %w", err)
	}

	return routing.Route{
		Points:         points,
		DistanceMeters: float64(route.DistanceMeters),
		DurationSecs:   float64(durationSeconds),
		Provider:       ProviderName,
	}, nil
}

// parseDuration parses Google's duration format like "450s" to seconds
func parseDuration(durationStr string) (int32, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if len(durationStr) > 1 && durationStr[len(durationStr)-1] == 's' {
		durationStr = durationStr[:len(durationStr)-1]
	}

	var seconds int32
	_, err := fmt.Sscanf(durationStr, "%d", &seconds)
	return seconds, err
}

// GoogleRoutesResponse represents the API response structure
type GoogleRoutesResponse struct {
	Routes []GoogleRoute `json:"routes"`
}

// GoogleRoute represents a single route in the response
type GoogleRoute struct {
	Duration       string         `json:"duration"`
	DistanceMeters int32          `json:"distanceMeters"`
	Polyline       GooglePolyline `json:"polyline"`
}

// GooglePolyline represents the route polyline
type GooglePolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}
