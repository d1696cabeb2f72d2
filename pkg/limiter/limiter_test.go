package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreThrottles(t *testing.T) {
	// 60 per minute = 1 token per second. Burst 1.
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	policy := Policy{PerMinute: 60, Burst: 1}

	actor := "reporting-service"

	if allowed, err := store.Allow(context.Background(), actor, policy, 1); err != nil || !allowed {
		t.Fatalf("first request: allowed=%v, err=%v", allowed, err)
	}

	// Bucket is empty now.
	if allowed, _ := store.Allow(context.Background(), actor, policy, 1); allowed {
		t.Errorf("second request allowed, expected throttle")
	}

	// Other actors have their own buckets.
	if allowed, err := store.Allow(context.Background(), "other", policy, 1); err != nil || !allowed {
		t.Errorf("other actor throttled: allowed=%v, err=%v", allowed, err)
	}

	// 1.1s refills one token.
	now = now.Add(1100 * time.Millisecond)
	if allowed, err := store.Allow(context.Background(), actor, policy, 1); err != nil || !allowed {
		t.Errorf("request after refill: allowed=%v, err=%v", allowed, err)
	}
}

func TestMemoryStoreCapsAtBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	policy := Policy{PerMinute: 60, Burst: 2}

	// Drain the initial burst.
	for i := 0; i < 2; i++ {
		if allowed, err := store.Allow(context.Background(), "a", policy, 1); err != nil || !allowed {
			t.Fatalf("drain %d: allowed=%v, err=%v", i, allowed, err)
		}
	}

	// A long idle period refills to capacity, not beyond.
	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if allowed, err := store.Allow(context.Background(), "a", policy, 1); err != nil || !allowed {
			t.Fatalf("post-idle %d: allowed=%v, err=%v", i, allowed, err)
		}
	}
	if allowed, _ := store.Allow(context.Background(), "a", policy, 1); allowed {
		t.Errorf("bucket exceeded burst capacity")
	}
}

func TestMemoryStoreCostConsumesMultipleTokens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	policy := Policy{PerMinute: 60, Burst: 5}

	if allowed, err := store.Allow(context.Background(), "a", policy, 5); err != nil || !allowed {
		t.Fatalf("cost 5 against burst 5: allowed=%v, err=%v", allowed, err)
	}
	if allowed, _ := store.Allow(context.Background(), "a", policy, 1); allowed {
		t.Errorf("bucket should be empty after cost-5 consume")
	}
}

func TestCheckFailsClosedWithoutStore(t *testing.T) {
	err := Check(context.Background(), nil, "a", Policy{PerMinute: 60, Burst: 1})
	if err == nil {
		t.Fatal("expected error with nil store")
	}
}

func TestCheckReturnsTypedLimitError(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	policy := Policy{PerMinute: 60, Burst: 1}

	if err := Check(context.Background(), store, "billing", policy); err != nil {
		t.Fatalf("first check: %v", err)
	}

	err := Check(context.Background(), store, "billing", policy)
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Actor != "billing" {
		t.Errorf("expected LimitError for billing, got %v", err)
	}
}
