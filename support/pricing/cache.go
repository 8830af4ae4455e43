package pricing

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached price stays fresh.
const DefaultTTL = 900 * time.Second

type cacheEntry struct {
	value   any
	expires time.Time
}

// Cache is a process-wide TTL cache shared by the pricing sub-services and
// the capacity prober. Access is serialised; lookups are cheap compared to
// the catalogue round-trips they avoid.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewCache builds a cache with the given TTL; non-positive means DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

// Get returns the cached value for key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key for the cache's TTL.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
}
