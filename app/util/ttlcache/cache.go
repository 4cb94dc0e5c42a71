package ttlcache

import (
	"sync"
	"time"
)

// Cache is an in-memory key/value store with per-entry expiry.
// Expired entries are treated as absent, never served stale.
type Cache[T any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[T]
	defaultTTL time.Duration
	now        func() time.Time

	hits   uint64
	misses uint64
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int    `json:"keys"`
}

func New[T any](defaultTTL time.Duration) *Cache[T] {
	return NewWithClock[T](defaultTTL, time.Now)
}

// NewWithClock takes an explicit time source so expiry is testable
// without wall-clock sleeps.
func NewWithClock[T any](defaultTTL time.Duration, now func() time.Time) *Cache[T] {
	return &Cache[T]{
		entries:    make(map[string]entry[T]),
		defaultTTL: defaultTTL,
		now:        now,
	}
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++

		var zero T
		return zero, false
	}

	c.hits++
	return e.value, true
}

func (c *Cache[T]) Set(key string, value T) {
	c.SetTTL(key, value, c.defaultTTL)
}

func (c *Cache[T]) SetTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[T]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:   c.hits,
		Misses: c.misses,
		Keys:   len(c.entries),
	}
}

// Sweep drops expired entries. Useful for long-lived caches with
// low read traffic that would otherwise accumulate dead keys.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}
