package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryReplayCache is the in-process fallback replay cache.
type MemoryReplayCache struct {
	mu      sync.Mutex
	markers map[string]time.Time
	ttl     time.Duration
}

func NewMemoryReplayCache(ttl time.Duration) *MemoryReplayCache {
	return &MemoryReplayCache{
		markers: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (r *MemoryReplayCache) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if expiresAt, ok := r.markers[eventID]; ok && now.Before(expiresAt) {
		return false, nil
	}

	r.markers[eventID] = now.Add(r.ttl)
	r.evictExpired(now)
	return true, nil
}

func (r *MemoryReplayCache) Forget(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, eventID)
	return nil
}

// evictExpired runs under the lock held by MarkIfFirst.
func (r *MemoryReplayCache) evictExpired(now time.Time) {
	for id, expiresAt := range r.markers {
		if now.After(expiresAt) {
			delete(r.markers, id)
		}
	}
}
