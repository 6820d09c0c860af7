package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads a fresh value for a cache key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Entry is a cached value with the time it was fetched.
type Entry[T any] struct {
	Value    T
	CachedAt time.Time
}

// Stats tracks cache performance metrics
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	StaleServes int64 `json:"stale_serves"`
	Errors      int64 `json:"errors"`
}

// TTLCache keeps the last successful fetch per key and refreshes it once it
// is older than the caller's ttl. A failed refresh never replaces or ages the
// stored entry; callers keep receiving the last good value instead.
type TTLCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
	stats   Stats
	group   singleflight.Group
	now     func() time.Time
	logger  *logrus.Logger
}

// NewTTLCache creates an empty cache.
func NewTTLCache[T any](logger *logrus.Logger) *TTLCache[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TTLCache[T]{
		entries: make(map[string]Entry[T]),
		now:     time.Now,
		logger:  logger,
	}
}

// GetOrFetch returns the cached value for key while it is younger than ttl.
// Otherwise it calls fetch; concurrent misses for the same key share one call.
// On fetch failure the previous value is returned if one exists, and the
// error is only propagated when the key has never been fetched successfully.
func (c *TTLCache[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch Fetcher[T]) (T, error) {
	if entry, ok := c.lookup(key); ok && c.now().Sub(entry.CachedAt) < ttl {
		c.record(func(s *Stats) { s.Hits++ })
		return entry.Value, nil
	}
	c.record(func(s *Stats) { s.Misses++ })

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = Entry[T]{Value: fresh, CachedAt: c.now()}
		c.stats.Sets++
		c.mu.Unlock()
		return fresh, nil
	})
	if err == nil {
		return value.(T), nil
	}

	c.record(func(s *Stats) { s.Errors++ })
	if entry, ok := c.lookup(key); ok {
		c.record(func(s *Stats) { s.StaleServes++ })
		c.logger.WithFields(logrus.Fields{
			"cache_key": key,
			"age_ms":    c.now().Sub(entry.CachedAt).Milliseconds(),
			"error":     err.Error(),
		}).Warn("Cache refresh failed, serving previous value")
		return entry.Value, nil
	}

	var zero T
	return zero, err
}

// Peek returns the stored entry without triggering a fetch.
func (c *TTLCache[T]) Peek(key string) (Entry[T], bool) {
	return c.lookup(key)
}

// Invalidate drops key so the next read refetches.
func (c *TTLCache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetStats returns a snapshot of the cache counters.
func (c *TTLCache[T]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *TTLCache[T]) lookup(key string) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *TTLCache[T]) record(update func(*Stats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
