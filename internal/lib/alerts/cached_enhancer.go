package alerts

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
)

// summaryTTL is how long an enhanced summary is reused for matching reports
const summaryTTL = 30 * time.Minute

// CachedMessageEnhancer wraps a MessageEnhancer with content-based caching
type CachedMessageEnhancer struct {
	enhancer MessageEnhancer
	cache    SummaryCache
	hasher   *ContentHasher
}

// SummaryCache stores enhanced summaries by content hash
type SummaryCache interface {
	SetSummary(contentHash string, summary string, ttl time.Duration) error
	GetSummary(contentHash string) (string, bool, error)
}

// NewCachedMessageEnhancer creates an enhancer with content-based caching
func NewCachedMessageEnhancer(enhancer MessageEnhancer, cache SummaryCache) *CachedMessageEnhancer {
	return &CachedMessageEnhancer{
		enhancer: enhancer,
		cache:    cache,
		hasher:   NewContentHasher(),
	}
}

// Enhance returns a cached summary for equivalent events, calling the
// underlying enhancer only on a miss
func (c *CachedMessageEnhancer) Enhance(ctx context.Context, event AlertEvent) (string, error) {
	contentHash := c.hasher.HashEvent(event)

	if cached, found, err := c.cache.GetSummary(contentHash); err == nil && found {
		logging.Debugw(ctx, "Summary cache hit", "hash", contentHash[:8])
		return cached, nil
	}

	summary, err := c.enhancer.Enhance(ctx, event)
	if err != nil {
		return "", err
	}

	if err := c.cache.SetSummary(contentHash, summary, summaryTTL); err != nil {
		logging.Warnw(ctx, "Failed to cache enhanced summary", "hash", contentHash[:8], "error", err)
	}

	return summary, nil
}

// HealthCheck delegates to underlying enhancer
func (c *CachedMessageEnhancer) HealthCheck(ctx context.Context) error {
	return c.enhancer.HealthCheck(ctx)
}
