package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Bounded is a TTL cache with a bounded key space, backed by an LRU. It is
// used where keys come from user input (site search queries, episode pages)
// and an unbounded map would grow without limit. Unlike Cache there is no
// stale fallback: an expired entry is dropped on read.
type Bounded[V any] struct {
	lru *lru.Cache[string, Entry[V]]
	ttl time.Duration

	now func() time.Time
}

// NewBounded creates a bounded TTL cache holding at most size entries.
func NewBounded[V any](size int, ttl time.Duration) *Bounded[V] {
	l, err := lru.New[string, Entry[V]](size)
	if err != nil {
		// lru.New only fails on size <= 0
		panic(err)
	}
	return &Bounded[V]{lru: l, ttl: ttl, now: time.Now}
}

// Get returns the value for key if present and fresh.
func (b *Bounded[V]) Get(key string) (V, bool) {
	e, ok := b.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if b.now().Sub(e.FetchedAt) >= b.ttl {
		b.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key.
func (b *Bounded[V]) Set(key string, value V) {
	b.lru.Add(key, Entry[V]{Value: value, FetchedAt: b.now()})
}

// Len returns the number of entries currently held.
func (b *Bounded[V]) Len() int {
	return b.lru.Len()
}
