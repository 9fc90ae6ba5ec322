package store

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/hazards.ersn.net/server/internal/cache"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

const memoryKeyPrefix = "hazard:"

// MemoryStore keeps hazards in a process-local TTL cache
type MemoryStore struct {
	cache     *cache.Cache
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(retention time.Duration, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		cache:     cache.NewCacheWithClock(o.now),
		retention: retention,
		now:       o.now,
	}
}

// Create validates and stores a hazard report
func (s *MemoryStore) Create(ctx context.Context, report hazard.Report) (hazard.Hazard, error) {
	h, err := prepare(report, s.now())
	if err != nil {
		return hazard.Hazard{}, err
	}

	if err := s.cache.Set(memoryKeyPrefix+h.ID, h, s.retention, "report"); err != nil {
		return hazard.Hazard{}, err
	}

	logging.Debugw(ctx, "Hazard stored", "id", h.ID, "type", h.Type, "driver", "memory")
	return h, nil
}

// List returns unexpired hazards in report order
func (s *MemoryStore) List(ctx context.Context) ([]hazard.Hazard, error) {
	hazards := []hazard.Hazard{}
	for _, key := range s.cache.Keys(memoryKeyPrefix) {
		var h hazard.Hazard
		found, err := s.cache.Get(key, &h)
		if err != nil {
			return nil, err
		}
		if found {
			hazards = append(hazards, h)
		}
	}

	sortByReportTime(hazards)
	return hazards, nil
}

// DeleteExpired drops hazards whose retention has elapsed
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	return s.cache.CleanupStale(), nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
