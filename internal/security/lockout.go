package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig contains the lockout policy.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	WindowDuration  time.Duration
}

// LockoutTracker tracks failed authentication attempts per identity. A nil
// Redis client disables tracking entirely.
type LockoutTracker struct {
	client *redis.Client
	cfg    LockoutConfig
}

// NewLockoutTracker creates a lockout tracker.
func NewLockoutTracker(client *redis.Client, cfg LockoutConfig) *LockoutTracker {
	return &LockoutTracker{client: client, cfg: cfg}
}

func (t *LockoutTracker) attemptsKey(identifier string) string {
	return fmt.Sprintf("lockout:attempts:%s", identifier)
}

func (t *LockoutTracker) lockKey(identifier string) string {
	return fmt.Sprintf("lockout:locked:%s", identifier)
}

// TrackFailedAttempt increments the failed-attempt counter and, when the
// ceiling is reached, marks the identity locked for the lockout duration.
// Returns the current count and whether the identity is now locked.
func (t *LockoutTracker) TrackFailedAttempt(ctx context.Context, identifier string) (int, bool, error) {
	if t.client == nil {
		return 0, false, nil
	}

	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, t.attemptsKey(identifier))
	pipe.Expire(ctx, t.attemptsKey(identifier), t.cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("lockout tracker: increment counter: %w", err)
	}

	count := int(incr.Val())
	if count < t.cfg.MaxAttempts {
		return count, false, nil
	}
	if err := t.client.Set(ctx, t.lockKey(identifier), "1", t.cfg.LockoutDuration).Err(); err != nil {
		return count, true, fmt.Errorf("lockout tracker: set lock: %w", err)
	}
	return count, true, nil
}

// IsLockedOut reports whether the identity is currently locked.
func (t *LockoutTracker) IsLockedOut(ctx context.Context, identifier string) (bool, error) {
	if t.client == nil {
		return false, nil
	}
	n, err := t.client.Exists(ctx, t.lockKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("lockout tracker: check lock: %w", err)
	}
	return n > 0, nil
}

// ClearAttempts resets the failed-attempt counter on successful login.
func (t *LockoutTracker) ClearAttempts(ctx context.Context, identifier string) error {
	if t.client == nil {
		return nil
	}
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, t.attemptsKey(identifier))
	pipe.Del(ctx, t.lockKey(identifier))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lockout tracker: clear attempts: %w", err)
	}
	return nil
}
