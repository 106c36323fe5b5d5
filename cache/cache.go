package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// entry is a single cached value. expiresAt is fixed when the entry is stored
// and is never extended by reads.
type entry struct {
	key       string
	value     any
	expiresAt time.Time
	hitCount  int
}

// Stats is a snapshot of the cache counters. Hits, Misses and Evictions only
// ever grow for the lifetime of the Cache.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	HitRate   string `json:"hitRate"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a bounded, TTL based key/value store owned by a single service.
// When full it evicts the entry with the fewest hits, preferring the one
// that expires first among equals.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	cfg       Config
	now       func() time.Time
	hits      uint64
	misses    uint64
	evictions uint64
}

var _ CacheService = (*Cache)(nil)

// New creates a Cache. Invalid configuration values fall back to the defaults.
func New(cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}

	c := &Cache{
		entries: make(map[string]*entry),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// Set stores value under key for ttl. A non-positive ttl uses the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictLocked()
	}

	c.entries[key] = &entry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the value for key. Expired entries are removed on read and
// reported as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	e.hitCount++
	c.hits++
	return e.value, true
}

// Delete implements CacheService.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.Remove(key)
	return nil
}

// Remove removes a single key and reports whether it was present.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.evictions++
	return true
}

// Clear removes every entry whose key contains pattern. An empty pattern
// removes everything. The number of removed entries is returned and added
// to the eviction counter.
func (c *Cache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	if pattern == "" {
		removed = len(c.entries)
		c.entries = make(map[string]*entry)
	} else {
		for key := range c.entries {
			if strings.Contains(key, pattern) {
				delete(c.entries, key)
				removed++
			}
		}
	}

	c.evictions += uint64(removed)
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
		HitRate:   FormatHitRate(c.hits, c.misses),
	}
}

// GetOrFetch implements CacheService. Fetch errors are returned and nothing
// is stored.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetchFn FetchFn[any]) (any, error) {
	if fetchFn == nil {
		return nil, ErrNilFetchFn
	}

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetchFn(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v, 0)
	return v, nil
}

// evictLocked drops the entry with the lowest hit count. Ties go to the
// earliest expiry, then to the smallest key so the choice is deterministic.
func (c *Cache) evictLocked() {
	var victim *entry
	for _, e := range c.entries {
		if victim == nil || less(e, victim) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(c.entries, victim.key)
	c.evictions++
}

func less(a, b *entry) bool {
	if a.hitCount != b.hitCount {
		return a.hitCount < b.hitCount
	}
	if !a.expiresAt.Equal(b.expiresAt) {
		return a.expiresAt.Before(b.expiresAt)
	}
	return a.key < b.key
}

// FormatHitRate renders hits/(hits+misses) as a percentage with two
// decimals, or "0.00%" before any access.
func FormatHitRate(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(hits)/float64(total)*100)
}
