package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
)

// ErrNoResults is returned by Lookup when a query matches nothing
var ErrNoResults = errors.New("no geocoding results")

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Place is a geocoded search result
type Place struct {
	Name  string    `json:"name"`
	Point geo.Point `json:"point"`
}

// Client queries a Nominatim search endpoint
type Client struct {
	baseURL    string
	userAgent  string
	limit      int
	httpClient HTTPDoer
}

// NewClient creates a new Nominatim client
func NewClient(baseURL, userAgent string, limit int, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(baseURL, userAgent, limit, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPDoer creates a client with a custom HTTP implementation
func NewClientWithHTTPDoer(baseURL, userAgent string, limit int, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limit:      limit,
		httpClient: doer,
	}
}

// Search returns places matching query. No match is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}, nil
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Nominatim's usage policy requires an identifying User-Agent
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("geocoding error %d: %s", resp.StatusCode, string(body))
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		p := geo.Point{Latitude: lat, Longitude: lon}
		if !geo.IsValidCoordinate(p) {
			continue
		}
		places = append(places, Place{Name: r.DisplayName, Point: p})
	}

	return places, nil
}

// Lookup returns the best match for query, or ErrNoResults
func (c *Client) Lookup(ctx context.Context, query string) (Place, error) {
	places, err := c.Search(ctx, query)
	if err != nil {
		return Place{}, err
	}
	if len(places) == 0 {
		return Place{}, ErrNoResults
	}
	return places[0], nil
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
