// Package dedup tracks recently harvested job ids so scheduled runs can skip
// re-fetching details for listings captured within the TTL window.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tjma/job-market-pipeline/internal/clock/system"
	"github.com/tjma/job-market-pipeline/internal/jobs"
)

// Cache answers whether a job id was harvested recently. Ids are marked only
// after their documents reach the bronze store, so a failed run re-fetches
// everything on retry.
type Cache interface {
	Seen(ctx context.Context, jobID string) (bool, error)
	Mark(ctx context.Context, jobIDs []string) error
}

// RedisCache implements Cache on Redis with per-key TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache parses redisURL, verifies connectivity, and returns a cache.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, prefix: "jobpipe:seen:", ttl: ttl}, nil
}

// Seen reports whether jobID was marked within the TTL window.
func (c *RedisCache) Seen(ctx context.Context, jobID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+jobID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark records the ids with the configured TTL.
func (c *RedisCache) Mark(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, id := range jobIDs {
		pipe.Set(ctx, c.prefix+id, 1, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// MemoryCache is an in-process Cache for tests and single-shot runs.
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]time.Time
	clock jobs.Clock
}

// NewMemoryCache constructs a MemoryCache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return NewMemoryCacheWithClock(ttl, system.New())
}

// NewMemoryCacheWithClock lets tests control expiry.
func NewMemoryCacheWithClock(ttl time.Duration, clock jobs.Clock) *MemoryCache {
	return &MemoryCache{
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		clock: clock,
	}
}

// Seen reports whether jobID was marked and has not expired.
func (c *MemoryCache) Seen(_ context.Context, jobID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[jobID]
	if !ok {
		return false, nil
	}
	if c.ttl > 0 && c.clock.Now().Sub(at) > c.ttl {
		delete(c.seen, jobID)
		return false, nil
	}
	return true, nil
}

// Mark records the ids at the current time.
func (c *MemoryCache) Mark(_ context.Context, jobIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for _, id := range jobIDs {
		c.seen[id] = now
	}
	return nil
}
