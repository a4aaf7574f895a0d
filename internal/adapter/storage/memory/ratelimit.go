package memory

import (
	"context"
	"sync"
	"time"

	"valutatrade/internal/core/ports"
)

// RateLimiter implements ports.RateLimiter with process-local fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	id    int64
	count int64
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now, windows: make(map[string]*window)}
}

// Allow mirrors the Redis fixed-window counter.
func (l *RateLimiter) Allow(_ context.Context, key string, limit int64, win time.Duration) (*ports.RateLimitResult, error) {
	secs := int64(win.Seconds())
	if secs < 1 {
		secs = 1
	}
	id := l.now().Unix() / secs

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || w.id != id {
		w = &window{id: id}
		l.windows[key] = w
	}
	w.count++
	count := w.count
	l.mu.Unlock()

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (id + 1) * secs,
	}, nil
}
