package openroute

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	angelsCamp = geo.Point{Latitude: 38.0683, Longitude: -120.5396}
	murphys    = geo.Point{Latitude: 38.1391, Longitude: -120.4561}
)

func TestGetRoute_Success(t *testing.T) {
	points := []geo.Point{angelsCamp, {Latitude: 38.1, Longitude: -120.5}, murphys}
	encoded := geo.NewGeoUtils().EncodePolyline(points)
	body := `{"routes":[{"summary":{"distance":11046.2,"duration":812.5},"geometry":"` + encoded + `"}]}`

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if req.Method != http.MethodPost || req.URL.String() != "https://ors.test/v2/directions/driving-car" {
			return false
		}
		if req.Header.Get("Authorization") != "test-key" {
			return false
		}
		var payload directionsRequest
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			return false
		}
		// Coordinates are sent as [lon, lat]
		return len(payload.Coordinates) == 2 &&
			payload.Coordinates[0] == [2]float64{angelsCamp.Longitude, angelsCamp.Latitude}
	})).Return(createMockResponse(200, body), nil)

	client := NewClientWithHTTPDoer("test-key", "https://ors.test", "", mockHTTP)
	route, err := client.GetRoute(context.Background(), angelsCamp, murphys)
	require.NoError(t, err)

	require.Len(t, route.Points, 3)
	assert.InDelta(t, angelsCamp.Latitude, route.Points[0].Latitude, 1e-5)
	assert.InDelta(t, murphys.Longitude, route.Points[2].Longitude, 1e-5)
	assert.Equal(t, 11046.2, route.DistanceMeters)
	assert.Equal(t, 812.5, route.DurationSecs)
	assert.Equal(t, ProviderName, route.Provider)
	mockHTTP.AssertExpectations(t)
}

func TestGetRoute_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
	}{
		{"network error", nil, errors.New("connection refused")},
		{"rate limited", createMockResponse(429, ""), nil},
		{"server error", createMockResponse(500, `{"error":"boom"}`), nil},
		{"bad json", createMockResponse(200, `not json`), nil},
		{"no routes", createMockResponse(200, `{"routes":[]}`), nil},
		{"empty geometry", createMockResponse(200, `{"routes":[{"geometry":""}]}`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(tt.resp, tt.err)

			client := NewClientWithHTTPDoer("test-key", "https://ors.test", "driving-car", mockHTTP)
			_, err := client.GetRoute(context.Background(), angelsCamp, murphys)
			require.Error(t, err)
			assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
		})
	}
}
