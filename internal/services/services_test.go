package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/hazards.ersn.net/server/internal/cache"
	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/alerts"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/geo"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/routing"
	"github.com/dpup/hazards.ersn.net/server/internal/store"
)

// MockProvider is a mock implementation of routing.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GetRoute(ctx context.Context, source, destination geo.Point) (routing.Route, error) {
	args := m.Called(ctx, source, destination)
	return args.Get(0).(routing.Route), args.Error(1)
}

// MockMessageEnhancer is a mock implementation of alerts.MessageEnhancer
type MockMessageEnhancer struct {
	mock.Mock
}

func (m *MockMessageEnhancer) Enhance(ctx context.Context, event alerts.AlertEvent) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}

func (m *MockMessageEnhancer) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []alerts.AlertEvent
	err    error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event alerts.AlertEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.err
}

type failingStore struct {
	store.Store
}

func (failingStore) List(ctx context.Context) ([]hazard.Hazard, error) {
	return nil, errors.New("connection reset")
}

// hangingStore blocks until the caller's context ends
type hangingStore struct {
	store.Store
}

func (hangingStore) List(ctx context.Context) ([]hazard.Hazard, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, nil
}

func (s *countingSweeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	src = geo.Point{Latitude: 0, Longitude: 0}
	dst = geo.Point{Latitude: 0, Longitude: 0.012}
)

func straightRoute() routing.Route {
	return routing.Route{Points: []geo.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.004},
		{Latitude: 0, Longitude: 0.008},
		{Latitude: 0, Longitude: 0.012},
	}, Provider: "mock"}
}

func TestRouteService_CachesRoutes(t *testing.T) {
	provider := &MockProvider{}
	provider.On("GetRoute", mock.Anything, src, dst).Return(straightRoute(), nil).Once()

	cfg := config.DefaultConfig().Routing
	svc := NewRouteService(provider, "mock", cache.NewCache(), &cfg)

	first, err := svc.GetRoute(context.Background(), src, dst)
	require.NoError(t, err)
	second, err := svc.GetRoute(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	provider.AssertNumberOfCalls(t, "GetRoute", 1)
}

func TestRouteService_Failures(t *testing.T) {
	cfg := config.DefaultConfig().Routing
	cfg.CacheTTL = 0

	t.Run("provider error is wrapped", func(t *testing.T) {
		provider := &MockProvider{}
		provider.On("GetRoute", mock.Anything, src, dst).Return(routing.Route{}, errors.New("timeout"))

		_, err := NewRouteService(provider, "mock", nil, &cfg).GetRoute(context.Background(), src, dst)
		assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
	})

	t.Run("empty route", func(t *testing.T) {
		provider := &MockProvider{}
		provider.On("GetRoute", mock.Anything, src, dst).Return(routing.Route{}, nil)

		_, err := NewRouteService(provider, "mock", nil, &cfg).GetRoute(context.Background(), src, dst)
		assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
	})

	t.Run("invalid coordinates skip the provider", func(t *testing.T) {
		provider := &MockProvider{}
		_, err := NewRouteService(provider, "mock", nil, &cfg).GetRoute(context.Background(), geo.Point{Latitude: 100}, dst)
		assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
		provider.AssertNotCalled(t, "GetRoute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("timeout applies to provider", func(t *testing.T) {
		cfg := cfg
		cfg.Timeout = 10 * time.Millisecond
		provider := &MockProvider{}
		provider.On("GetRoute", mock.Anything, src, dst).Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).Return(routing.Route{}, context.DeadlineExceeded)

		_, err := NewRouteService(provider, "mock", nil, &cfg).GetRoute(context.Background(), src, dst)
		assert.ErrorIs(t, err, routing.ErrRouteUnavailable)
	})
}

func TestNewRoutingProvider(t *testing.T) {
	cfg := config.DefaultConfig().Routing
	_, name := NewRoutingProvider(&cfg)
	assert.Equal(t, "openroute", name)

	cfg.Provider = "google"
	_, name = NewRoutingProvider(&cfg)
	assert.Equal(t, "google", name)
}

func TestHazardService_ReportBroadcasts(t *testing.T) {
	ctx := context.Background()
	svc := NewHazardService(store.NewMemoryStore(store.DefaultRetention), routing.NewCorrelator(500, routing.Grouped), nil, 0, 0)
	b := &recordingBroadcaster{}
	svc.SetBroadcaster(b)

	h, err := svc.Report(ctx, hazard.Report{Type: "accident", Latitude: hazard.Float(37.7749), Longitude: hazard.Float(-122.4194)})
	require.NoError(t, err)

	require.Len(t, b.events, 1)
	assert.Equal(t, h.ID, b.events[0].ID)
	assert.Equal(t, "ACCIDENT reported at (37.775, -122.419)", b.events[0].Message)
	assert.Empty(t, b.events[0].Summary)
}

func TestHazardService_ReportRejectsInvalid(t *testing.T) {
	svc := NewHazardService(store.NewMemoryStore(store.DefaultRetention), routing.NewCorrelator(500, routing.Grouped), nil, 0, 0)
	b := &recordingBroadcaster{}
	svc.SetBroadcaster(b)

	_, err := svc.Report(context.Background(), hazard.Report{Type: "accident", Longitude: hazard.Float(1)})
	assert.ErrorIs(t, err, hazard.ErrValidation)
	assert.Empty(t, b.events, "Rejected reports are never broadcast")

	hazards, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hazards)
}

func TestHazardService_ReportSurvivesBroadcastFailure(t *testing.T) {
	svc := NewHazardService(store.NewMemoryStore(store.DefaultRetention), routing.NewCorrelator(500, routing.Grouped), nil, 0, 0)
	svc.SetBroadcaster(&recordingBroadcaster{err: errors.New("backplane down")})

	h, err := svc.Report(context.Background(), hazard.Report{Type: "debris", Latitude: hazard.Float(1), Longitude: hazard.Float(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
}

func TestHazardService_Enhancement(t *testing.T) {
	ctx := context.Background()

	enhancer := &MockMessageEnhancer{}
	enhancer.On("Enhance", mock.Anything, mock.MatchedBy(func(e alerts.AlertEvent) bool {
		return e.Type == "accident"
	})).Return("Crash ahead, slow down.", nil)
	enhancer.On("Enhance", mock.Anything, mock.Anything).Return("", errors.New("quota"))

	svc := NewHazardService(store.NewMemoryStore(store.DefaultRetention), routing.NewCorrelator(500, routing.Grouped), enhancer, time.Second, 0)
	b := &recordingBroadcaster{}
	svc.SetBroadcaster(b)

	_, err := svc.Report(ctx, hazard.Report{Type: "accident", Latitude: hazard.Float(1), Longitude: hazard.Float(1)})
	require.NoError(t, err)
	_, err = svc.Report(ctx, hazard.Report{Type: "roadblock", Latitude: hazard.Float(1), Longitude: hazard.Float(1)})
	require.NoError(t, err)

	require.Len(t, b.events, 2)
	assert.Equal(t, "Crash ahead, slow down.", b.events[0].Summary)
	assert.Empty(t, b.events[1].Summary, "Enhancement failure falls back to the plain message")
	assert.Equal(t, "ROADBLOCK reported at (1.000, 1.000)", b.events[1].Text())
}

func TestHazardService_Correlate(t *testing.T) {
	ctx := context.Background()
	svc := NewHazardService(store.NewMemoryStore(store.DefaultRetention), routing.NewCorrelator(500, routing.Grouped), nil, 0, 0)

	_, err := svc.Report(ctx, hazard.Report{Type: "Accident", Latitude: hazard.Float(0), Longitude: hazard.Float(0.006)})
	require.NoError(t, err)
	_, err = svc.Report(ctx, hazard.Report{Type: "roadblock", Latitude: hazard.Float(1), Longitude: hazard.Float(1)})
	require.NoError(t, err)

	correlation, err := svc.Correlate(ctx, straightRoute())
	require.NoError(t, err)
	require.Len(t, correlation, 1)
	assert.Equal(t, hazard.SeverityHigh, correlation[0].Severity)
	require.Len(t, correlation[0].Segments, 1)
	assert.Len(t, correlation[0].Segments[0].Points, 2)
}

func TestHazardService_CorrelateFetchFailure(t *testing.T) {
	svc := NewHazardService(failingStore{}, routing.NewCorrelator(500, routing.Grouped), nil, 0, 0)

	correlation, err := svc.Correlate(context.Background(), straightRoute())
	assert.Error(t, err)
	assert.Nil(t, correlation)
}

func TestHazardService_CorrelateStoreTimeout(t *testing.T) {
	svc := NewHazardService(hangingStore{}, routing.NewCorrelator(500, routing.Grouped), nil, 0, 20*time.Millisecond)

	start := time.Now()
	correlation, err := svc.Correlate(context.Background(), straightRoute())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, correlation)
	assert.Less(t, time.Since(start), time.Second)

	_, err = svc.List(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPeriodicSweepService(t *testing.T) {
	sweeper := &countingSweeper{}
	p := NewPeriodicSweepService(sweeper, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.StartPeriodicSweep(ctx))
	require.NoError(t, p.StartPeriodicSweep(ctx), "Starting twice is a no-op")
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool { return sweeper.Calls() >= 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestPeriodicSweepService_SweepOnce(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	mem := store.NewMemoryStore(time.Minute, store.WithClock(now))

	_, err := mem.Create(ctx, hazard.Report{Type: "debris", Latitude: hazard.Float(1), Longitude: hazard.Float(1)})
	require.NoError(t, err)

	p := NewPeriodicSweepService(mem, time.Second)
	assert.Equal(t, 0, p.SweepOnce(ctx))

	clock = clock.Add(time.Minute)
	assert.Equal(t, 1, p.SweepOnce(ctx))
}
