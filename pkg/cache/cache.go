// Package cache provides the in-memory response cache: composite key to
// record payload with TTL-based lazy expiry and explicit invalidation.
// The cache is an optimization, never a correctness dependency: callers
// fall through to a direct fetch when it misbehaves.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openelt/nsgateway/pkg/metrics"
	"github.com/openelt/nsgateway/pkg/models"
)

// Entry is one cached result. Entries are read-only after insertion and
// replaced wholesale; no write mutates an entry in place.
type Entry struct {
	Records    []models.Record
	TotalCount int
	HasMore    bool
	InsertedAt time.Time
}

// entry binds a stored Entry to its owning entity for scoped invalidation.
type entry struct {
	Entry
	entity string
}

// Cache is a TTL cache keyed by composite request identity. Safe for
// concurrent use.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[string]*entry

	hits   int64
	misses int64

	// injectable clock for expiry tests
	now func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the cache's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given TTL and capacity (0 = unbounded).
func New(ttl time.Duration, maxEntries int, opts ...Option) *Cache {
	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the composite cache key for a request identity.
func Key(entity string, parts ...string) string {
	all := append([]string{"nsgateway", entity}, parts...)
	return strings.Join(all, ":")
}

// Get returns the entry for key, or ok=false on a miss. An entry older
// than the TTL is treated as absent and removed. The returned records
// are a copy; callers cannot mutate the stored payload.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found {
		atomic.AddInt64(&c.misses, 1)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false
	}

	if c.now().Sub(e.InsertedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// replaced the entry with a fresh one
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		atomic.AddInt64(&c.misses, 1)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return Entry{}, false
	}

	atomic.AddInt64(&c.hits, 1)
	metrics.CacheLookups.WithLabelValues("hit").Inc()

	out := e.Entry
	out.Records = models.CloneAll(e.Records)
	return out, true
}

// Put stores an entry for key, replacing any existing entry atomically.
func (c *Cache) Put(key, entity string, records []models.Record, totalCount int, hasMore bool) {
	e := &entry{
		Entry: Entry{
			Records:    models.CloneAll(records),
			TotalCount: totalCount,
			HasMore:    hasMore,
			InsertedAt: c.now(),
		},
		entity: entity,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = e
}

// Invalidate removes all entries for an entity, or every entry when
// entity is empty.
func (c *Cache) Invalidate(entity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entity == "" {
		n := len(c.entries)
		c.entries = make(map[string]*entry)
		return n
	}

	n := 0
	for k, e := range c.entries {
		if e.entity == entity {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// evictOldestLocked drops the oldest entry. Caller holds the write lock.
func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.InsertedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.InsertedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// GetStats returns cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}
