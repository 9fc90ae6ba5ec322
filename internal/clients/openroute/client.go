package openroute

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

// ProviderName identifies routes fetched from OpenRouteService
const ProviderName = "openroute"

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the OpenRouteService directions API
type Client struct {
	apiKey     string
	baseURL    string
	profile    string
	httpClient HTTPDoer
	geoUtils   geo.GeoUtils
}

// NewClient creates a new OpenRouteService client
func NewClient(apiKey, baseURL, profile string) *Client {
	return NewClientWithHTTPDoer(apiKey, baseURL, profile, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with a custom HTTP implementation
func NewClientWithHTTPDoer(apiKey, baseURL, profile string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	if profile == "" {
		profile = "driving-car"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		profile:    profile,
		httpClient: doer,
		geoUtils:   geo.NewGeoUtils(),
	}
}

// GetRoute fetches a driving route between two points. Any failure wraps
// routing.ErrRouteUnavailable.
func (c *Client) GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error) {
	route, err := c.fetch(ctx, source, destination)
	if err != nil {
		return routing.Route{}, fmt.Errorf("%w: openroute: %v", routing.ErrRouteUnavailable, err)
	}
	return route, nil
}

func (c *Client) fetch(ctx context.Context, source, destination geo.Point) (routing.Route, error) {
	// OpenRouteService expects [longitude, latitude] pairs
	requestBody := directionsRequest{
		Coordinates: [][2]float64{
			{source.Longitude, source.Latitude},
			{destination.Longitude, destination.Latitude},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, c.profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return routing.Route{}, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return routing.Route{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return routing.Route{}, fmt.Errorf("no routes found in response")
	}

	first := response.Routes[0]
	points, err := c.geoUtils.DecodePolyline(first.Geometry)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode geometry: %w", err)
	}
	if len(points) == 0 {
		return routing.Route{}, fmt.Errorf("route has no geometry")
	}

	return routing.Route{
		Points:         points,
		DistanceMeters: first.Summary.Distance,
		DurationSecs:   first.Summary.Duration,
		Provider:       ProviderName,
	}, nil
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Routes []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	Summary  routeSummary `json:"summary"`
	Geometry string       `json:"geometry"`
}

type routeSummary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}
