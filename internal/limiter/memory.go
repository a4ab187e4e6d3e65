package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a fixed-window limiter backed by a process-local map, used
// when Redis is not configured and by unit tests. Expired buckets are removed
// lazily on access and swept when the map grows past maxKeys.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*memoryBucket
	maxKeys int
}

type memoryBucket struct {
	count     int
	windowEnd time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an in-memory limiter. A nil now func defaults to
// time.Now.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		now:     now,
		buckets: make(map[string]*memoryBucket),
		maxKeys: 100000,
	}
}

// Allow counts one request against the bucket and reports the decision.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if ok && now.After(bucket.windowEnd) {
		delete(m.buckets, key)
		ok = false
	}
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.sweep(now)
		}
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.buckets[key] = bucket
	}

	bucket.count++
	decision := Decision{
		Allowed:   bucket.count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-bucket.count),
		ResetAt:   bucket.windowEnd,
	}
	if !decision.Allowed {
		decision.RetryAfter = bucket.windowEnd.Sub(now)
	}
	return decision, nil
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, bucket := range m.buckets {
		if now.After(bucket.windowEnd) {
			delete(m.buckets, key)
		}
	}
}
