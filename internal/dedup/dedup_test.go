package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func TestMemoryCacheMarkAndSeen(t *testing.T) {
	t.Parallel()

	cache := NewMemoryCache(time.Hour)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Mark(ctx, []string{"a1", "a2"}))

	seen, err = cache.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	clock := &stubClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryCacheWithClock(time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, []string{"a1"}))

	clock.now = clock.now.Add(59 * time.Minute)
	seen, err := cache.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, seen)

	clock.now = clock.now.Add(2 * time.Minute)
	seen, err = cache.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	clock := &stubClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryCacheWithClock(0, clock)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, []string{"a1"}))
	clock.now = clock.now.Add(1000 * time.Hour)

	seen, err := cache.Seen(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, seen)
}
