// Package limiter rate-limits ledger operations per actor with token
// buckets, in memory for single instances or in Redis for fleets.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited marks operations refused by rate limiting.
var ErrLimited = errors.New("limiter: rate limit exceeded")

// LimitError identifies the throttled actor.
type LimitError struct {
	Actor string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limiter: rate limit exceeded for %s", e.Actor)
}

// Is reports true for ErrLimited.
func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// Policy defines per-actor limits.
type Policy struct {
	PerMinute int
	Burst     int
}

// Store abstracts the token bucket backend.
type Store interface {
	// Allow checks whether the actor may perform an action costing cost
	// tokens, consuming them if so.
	Allow(ctx context.Context, actor string, policy Policy, cost int) (bool, error)
}

// Check consumes one token for the actor. A nil store fails closed.
func Check(ctx context.Context, store Store, actor string, policy Policy) error {
	if store == nil {
		return errors.New("limiter: no store configured")
	}

	allowed, err := store.Allow(ctx, actor, policy, 1)
	if err != nil {
		return fmt.Errorf("limiter: check failed: %w", err)
	}
	if !allowed {
		return &LimitError{Actor: actor}
	}
	return nil
}

// tokenBucket is one actor's bucket.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (tb *tokenBucket) allow(now time.Time, cost int) bool {
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= float64(cost) {
		tb.tokens -= float64(cost)
		return true
	}
	return false
}

// MemoryStore keeps per-actor buckets in process. Suitable for tests and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	now     func() time.Time
}

// NewMemoryStore creates an in-process limiter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

// WithClock overrides the bucket clock for testing.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Allow(_ context.Context, actor string, policy Policy, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb, exists := s.buckets[actor]
	if !exists {
		rate := float64(policy.PerMinute) / 60.0
		if rate <= 0 {
			rate = 1
		}
		tb = &tokenBucket{
			tokens:     float64(policy.Burst),
			capacity:   float64(policy.Burst),
			refillRate: rate,
			lastRefill: s.now(),
		}
		s.buckets[actor] = tb
	}

	return tb.allow(s.now(), cost), nil
}
