package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLocks hands out one single-slot weighted semaphore per asset id.
// Weighted acquisition is queued and fair and honours the caller's
// context, so no operation waits past its own deadline. Slots are never
// removed; the registry holding the assets never shrinks either.
type keyedLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{sems: make(map[string]*semaphore.Weighted)}
}

// acquire blocks until the key's slot is held or ctx ends. The returned
// release must be called exactly once.
func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	sem, ok := k.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.sems[key] = sem
	}
	k.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("lifecycle: lock %s: %w", key, err)
	}
	return func() { sem.Release(1) }, nil
}
