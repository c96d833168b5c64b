// Package memory provides an in-memory TTL cache. The fetcher uses it
// to serve stale content when a source goes unreachable, and any other
// component needing a cache takes the same interface rather than
// keeping module-level state.
package memory

import (
	"sync"
	"time"

	"github.com/custodia-labs/corpus/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

// DefaultTTL applies when no TTL option is given.
const DefaultTTL = 15 * time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a thread-safe TTL key-value store. Expired entries are
// evicted lazily on access and swept during Set.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time

	entries map[string]entry
}

// Option configures the cache.
type Option func(*Cache)

// WithTTL overrides the entry lifetime. Zero or negative means entries
// never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value and whether it was present and
// unexpired. The returned slice is a copy.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.Delete(key)
		return nil, false
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true
}

// Set stores a copy of the value with the cache's TTL. Expired entries
// are swept opportunistically.
func (c *Cache) Set(key string, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{value: stored, expiresAt: expiresAt}
}

// Has reports whether an unexpired value exists.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes a key. Absent keys are a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e entry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}
