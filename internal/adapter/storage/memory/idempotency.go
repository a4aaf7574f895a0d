package memory

import (
	"context"
	"sync"
	"time"
)

// IdempotencyCache implements ports.IdempotencyCache in process memory.
// Expired entries are dropped lazily on access.
type IdempotencyCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewIdempotencyCache creates an empty cache.
func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{now: time.Now, entries: make(map[string]idempotencyEntry)}
}

func (c *IdempotencyCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

func (c *IdempotencyCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = idempotencyEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}
