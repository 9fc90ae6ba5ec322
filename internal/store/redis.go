package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/redis/go-redis/v9"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
	"github.com/dpup/hazards.ersn.net/server/internal/lib/hazard"
)

const scanBatchSize = 100

// RedisStore keeps each hazard under its own key with a TTL, so expiry is
// handled by redis and shared across server instances
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// OpenRedisStore connects to redis and verifies the connection
func OpenRedisStore(ctx context.Context, cfg config.RedisConfig, retention time.Duration, opts ...Option) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logging.Errorw(ctx, "Failed to ping Redis", "addr", cfg.Addr, "error", err)
		if cerr := rdb.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logging.Infow(ctx, "Connected to Redis hazard store", "addr", cfg.Addr)

	return NewRedisStore(rdb, cfg.KeyPrefix, retention, opts...), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = memoryKeyPrefix
	}
	o := buildOptions(opts)
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       o.now,
	}
}

// Create validates and stores a hazard report
func (s *RedisStore) Create(ctx context.Context, report hazard.Report) (hazard.Hazard, error) {
	h, err := prepare(report, s.now())
	if err != nil {
		return hazard.Hazard{}, err
	}

	b, err := json.Marshal(h)
	if err != nil {
		return hazard.Hazard{}, fmt.Errorf("failed to marshal hazard: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+h.ID, b, s.retention).Err(); err != nil {
		return hazard.Hazard{}, fmt.Errorf("failed to store hazard: %w", err)
	}

	logging.Debugw(ctx, "Hazard stored", "id", h.ID, "type", h.Type, "driver", "redis")
	return h, nil
}

// List returns unexpired hazards in report order
func (s *RedisStore) List(ctx context.Context) ([]hazard.Hazard, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan hazards: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}

	hazards := []hazard.Hazard{}
	if len(keys) == 0 {
		return hazards, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load hazards: %w", err)
	}

	for i, v := range values {
		// Keys can expire between SCAN and MGET
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var h hazard.Hazard
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			logging.Warnw(ctx, "Skipping unreadable hazard", "key", keys[i], "error", err)
			continue
		}
		hazards = append(hazards, h)
	}

	sortByReportTime(hazards)
	return hazards, nil
}

// Close closes the redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
