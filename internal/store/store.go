package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

// ErrUnknownDriver is returned for an unsupported store.driver value
var ErrUnknownDriver = errors.New("unknown hazard store driver")

// DefaultRetention is how long a reported hazard stays visible
const DefaultRetention = 120 * time.Second

// Store holds reported hazards for a bounded retention window. Create
// validates the report; List returns only unexpired hazards in report order.
type Store interface {
	Create(ctx context.Context, report hazard.Report) (hazard.Hazard, error)
	List(ctx context.Context) ([]hazard.Hazard, error)
	Close() error
}

// Sweeper is implemented by stores whose expired rows must be removed explicitly
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// Option configures a store
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the store's time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New opens the store selected by cfg.Store.Driver
func New(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	retention := cfg.Hazards.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	switch cfg.Store.Driver {
	case "", "memory":
		return NewMemoryStore(retention, opts...), nil
	case "redis":
		return OpenRedisStore(ctx, cfg.Store.Redis, retention, opts...)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.Store.Postgres, retention, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Store.Driver)
	}
}

// prepare validates a report and stamps a new hazard
func prepare(report hazard.Report, now time.Time) (hazard.Hazard, error) {
	if err := hazard.Validate(&report); err != nil {
		return hazard.Hazard{}, err
	}
	return hazard.New(report, now), nil
}

func sortByReportTime(hazards []hazard.Hazard) {
	sort.SliceStable(hazards, func(i, j int) bool {
		if hazards[i].Timestamp.Equal(hazards[j].Timestamp) {
			return hazards[i].ID < hazards[j].ID
		}
		return hazards[i].Timestamp.Before(hazards[j].Timestamp)
	})
}
