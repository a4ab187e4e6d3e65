// Package limiter provides per-category request-quota enforcement for the
// security pipeline.
//
// Purpose:
//
//	This package implements fixed-window rate limiting keyed by (category,
//	client key). The production implementation stores counters in Redis with
//	an atomic Lua script; an in-memory implementation backs single-process
//	deployments and tests.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: Redis client for window counters
//
// Key Responsibilities:
//   - Limiter interface shared by Redis and memory implementations
//   - Category definitions (window length, ceiling, rejection message)
//   - Atomic increment-and-check per request
//
// Thread Safety:
//   - All implementations are safe for concurrent use
//
// Error Handling:
//   - Backend failures surface as errors; the middleware decides whether to
//     fail open or closed
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter counts one request against a (category, client key) bucket.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RedisLimiter implements fixed-window limiting with Redis counters.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a redis-backed limiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// allowScript increments the window counter atomically, setting the expiry on
// first use so the window starts at the first request.
const allowScript = `
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {count, ttl}
`

// Allow counts one request against the bucket and reports the decision.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	result, err := l.client.Eval(ctx, allowScript,
		[]string{fmt.Sprintf("%s:%s", l.prefix, key)},
		window.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("rate limit check: unexpected result format")
	}
	count := values[0].(int64)
	ttlMillis := values[1].(int64)

	ttl := time.Duration(ttlMillis) * time.Millisecond
	if ttlMillis < 0 {
		ttl = window
	}
	resetAt := time.Now().Add(ttl)

	decision := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		ResetAt:   resetAt,
	}
	if !decision.Allowed {
		decision.RetryAfter = ttl
	}
	return decision, nil
}

// Reset clears the bucket for a key (useful for tests).
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
