// Package cache provides the process-wide TTL caches shared by the registry,
// plugin loader and identifier resolver. Entries are immutable value copies
// once stored; concurrent refreshes of the same key are tolerated as
// redundant work rather than serialized.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its fetch time. An entry is fresh while
// now - FetchedAt < ttl; an expired entry is still retained as a stale
// fallback for GetOrRefresh.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Cache is a keyed TTL cache with serve-stale-on-refresh-failure semantics.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[string]Entry[V]

	now func() time.Time // overridable for tests
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		data: make(map[string]Entry[V]),
		now:  time.Now,
	}
}

// Get returns the value for key regardless of age. The second return reports
// whether an entry exists at all; callers that need freshness use GetOrRefresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	return e.Value, ok
}

// GetFresh returns the value for key only if it is younger than ttl.
func (c *Cache[V]) GetFresh(key string, ttl time.Duration) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok || c.now().Sub(e.FetchedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Entry returns the raw entry for key, if present.
func (c *Cache[V]) Entry(key string) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	return e, ok
}

// Set stores value under key, stamped with the current time.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.data[key] = Entry[V]{Value: value, FetchedAt: c.now()}
	c.mu.Unlock()
}

// Remove deletes an entry from the cache.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len returns the number of entries, fresh or stale.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// GetOrRefresh returns the cached value if it is younger than ttl. Otherwise
// it calls refresh; on success the new value is stored and returned. On
// refresh failure the previous value is returned unchanged when one exists
// (stale-if-error), else the refresh error propagates.
func (c *Cache[V]) GetOrRefresh(key string, ttl time.Duration, refresh func() (V, error)) (V, error) {
	if v, ok := c.GetFresh(key, ttl); ok {
		return v, nil
	}

	v, err := refresh()
	if err != nil {
		if prev, ok := c.Get(key); ok {
			return prev, nil
		}
		var zero V
		return zero, err
	}

	c.Set(key, v)
	return v, nil
}
