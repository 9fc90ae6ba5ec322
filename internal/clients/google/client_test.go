package google

import (
	"context"
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

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	origin      = geo.Point{Latitude: 47.606209, Longitude: -122.3321}
	destination = geo.Point{Latitude: 45.5152, Longitude: -122.6784}
)

// Three-point polyline from Google's encoding documentation
const testPolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func TestGetRoute_Success(t *testing.T) {
	body := `{"routes":[{"duration":"450s","distanceMeters":50000,"polyline":{"encodedPolyline":"` + testPolyline + `"}}]}`

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, body), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

	route, err := client.GetRoute(context.Background(), origin, destination)
	require.NoError(t, err)

	require.Len(t, route.Points, 3)
	assert.InDelta(t, 38.5, route.Points[0].Latitude, 1e-5)
	assert.InDelta(t, -120.2, route.Points[0].Longitude, 1e-5)
	assert.InDelta(t, 43.252, route.Points[2].Latitude, 1e-5)
	assert.Equal(t, 450.0, route.DurationSecs)
	assert.Equal(t, 50000.0, route.DistanceMeters)
	assert.Equal(t, ProviderName, route.Provider)

	mockHTTP.AssertExpectations(t)
}

func TestGetRoute_RequestFormat(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody string
	body := `{"routes":[{"duration":"10s","distanceMeters":1,"polyline":{"encodedPolyline":"` + testPolyline + `"}}]}`

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		capturedRequest = args.Get(0).(*http.Request)
		b, _ := io.ReadAll(capturedRequest.Body)
		capturedBody = string(b)
	}).Return(createMockResponse(200, body), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

	_, err := client.GetRoute(context.Background(), origin, destination)
	require.NoError(t, err)

	require.NotNil(t, capturedRequest)
	assert.Equal(t, "POST", capturedRequest.Method)
	assert.Equal(t, "/directions/v2:computeRoutes", capturedRequest.URL.Path)

	// Verify required headers
	assert.Equal(t, "test-api-key", capturedRequest.Header.Get("X-Goog-Api-Key"))
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))
	assert.Equal(t, "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline",
		capturedRequest.Header.Get("X-Goog-FieldMask"))

	assert.Contains(t, capturedBody, "47.606209")
	assert.Contains(t, capturedBody, "-122.6784")
	assert.Contains(t, capturedBody, "\"travelMode\":\"DRIVE\"")
}

func TestGetRoute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"no routes", 200, `{"routes": []}`, "no routes found in response"},
		{"rate limit", 429, `{"error": {"message": "Quota exceeded"}}`, "rate limit exceeded"},
		{"api error", 400, `{"error": {"message": "Invalid coordinates"}}`, "API error 400"},
		{"invalid json", 200, `{"invalid": json}`, "failed to decode response"},
		{"bad duration", 200, `{"routes":[{"duration":"","polyline":{"encodedPolyline":"` + testPolyline + `"}}]}`, "failed to parse duration"},
		{"missing polyline", 200, `{"routes":[{"duration":"5s"}]}`, "failed to decode polyline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
				createMockResponse(tt.status, tt.body), nil)

			client := NewClientWithHTTPDoer("test-api-key", "https://routes.googleapis.com", mockHTTP)

			_, err := client.GetRoute(context.Background(), origin, destination)
			require.Error(t, err)
			assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
			assert.Contains(t, err.Error(), tt.contains)

			mockHTTP.AssertExpectations(t)
		})
	}
}

func TestParseDuration(t *testing.T) {
	seconds, err := parseDuration("450s")
	require.NoError(t, err)
	assert.Equal(t, int32(450), seconds)

	_, err = parseDuration("")
	assert.Error(t, err)
}
