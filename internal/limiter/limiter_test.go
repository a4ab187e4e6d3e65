package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, "test"), mr
}

func TestRedisLimiterEnforcesWindow(t *testing.T) {
	lim, _ := newRedisLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := lim.Allow(ctx, "auth:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d within quota", i)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := lim.Allow(ctx, "auth:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	lim, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := lim.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
	}
	d, err := lim.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	mr.FastForward(time.Minute + time.Second)

	d, err = lim.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a fresh window starts after expiry")
}

func TestRedisLimiterIsolatesKeys(t *testing.T) {
	lim, _ := newRedisLimiter(t)
	ctx := context.Background()

	_, err := lim.Allow(ctx, "auth:1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	d, err := lim.Allow(ctx, "auth:1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = lim.Allow(ctx, "auth:5.6.7.8", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "another client key has its own bucket")
}

func TestRedisLimiterReset(t *testing.T) {
	lim, _ := newRedisLimiter(t)
	ctx := context.Background()

	_, err := lim.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lim.Reset(ctx, "k"))

	d, err := lim.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterEnforcesWindow(t *testing.T) {
	now := time.Now()
	lim := NewMemoryLimiter(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := lim.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := lim.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	now = now.Add(61 * time.Second)
	d, err = lim.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "counter resets after the window")
}

func TestPolicyForFallsBackToStandard(t *testing.T) {
	assert.Equal(t, policies[CategoryStandardAPI], PolicyFor(Category("unknown")))
	assert.Equal(t, 5, PolicyFor(CategoryCriticalAuth).Limit)
	assert.Equal(t, time.Hour, PolicyFor(CategoryAuth).Window)
}
