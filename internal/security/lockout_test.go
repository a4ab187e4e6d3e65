package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*LockoutTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLockoutTracker(client, LockoutConfig{
		MaxAttempts:     3,
		LockoutDuration: 15 * time.Minute,
		WindowDuration:  15 * time.Minute,
	}), mr
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, locked, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, locked)
	}

	_, locked, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, locked, "third failure trips the lockout")

	isLocked, err := tracker.IsLockedOut(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, isLocked)
}

func TestLockoutExpires(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
		require.NoError(t, err)
	}
	mr.FastForward(16 * time.Minute)

	locked, err := tracker.IsLockedOut(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, locked, "lockout expires with its TTL")
}

func TestClearAttemptsResetsState(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
		require.NoError(t, err)
	}
	require.NoError(t, tracker.ClearAttempts(ctx, "a@example.com"))

	locked, err := tracker.IsLockedOut(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, locked)

	count, _, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "counter restarts after clear")
}

func TestTrackerWithoutRedisDegrades(t *testing.T) {
	tracker := NewLockoutTracker(nil, LockoutConfig{MaxAttempts: 1})
	ctx := context.Background()

	count, locked, err := tracker.TrackFailedAttempt(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, locked)

	isLocked, err := tracker.IsLockedOut(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, isLocked)
	assert.NoError(t, tracker.ClearAttempts(ctx, "a@example.com"))
}
