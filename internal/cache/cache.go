// Package cache holds fetched entities in memory for a bounded time.
//
// Entries expire after a fixed TTL. There is no background sweeper: every
// read first checks whether the oldest entry has expired and, only then,
// scans and evicts every stale entry.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a cached value and the time it was fetched.
type Entry[V any] struct {
	Key       string
	Value     V
	FetchedAt time.Time
}

type config struct {
	now    func() time.Time
	logger zerolog.Logger
	name   string
}

// Option configures a cache.
type Option func(*config)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the logger used to report purges.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithName labels the cache in log output.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

func newConfig(opts []Option) config {
	cfg := config{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Cache maps case-insensitive keys to values with a shared TTL. It is safe
// for concurrent use.
type Cache[V any] struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]Entry[V]
	oldest  time.Time // no entry is older; may lag behind removals
}

// New creates an empty cache whose entries live for ttl.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	cfg := newConfig(opts)
	logger := cfg.logger
	if cfg.name != "" {
		logger = logger.With().Str("cache", cfg.name).Logger()
	}
	return &Cache[V]{
		ttl:     ttl,
		now:     cfg.now,
		logger:  logger,
		entries: make(map[string]Entry[V]),
	}
}

// TTL returns the entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

func normalize(key string) string {
	return strings.ToLower(key)
}

// Get returns the fresh value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	entry, ok := c.GetEntry(key)
	return entry.Value, ok
}

// GetEntry returns the fresh entry stored under key.
func (c *Cache[V]) GetEntry(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked()
	entry, ok := c.entries[normalize(key)]
	return entry, ok
}

// ContainsKey reports whether a fresh entry exists for key.
func (c *Cache[V]) ContainsKey(key string) bool {
	_, ok := c.GetEntry(key)
	return ok
}

// Set stores value under key, fetched now.
func (c *Cache[V]) Set(key string, value V) {
	c.SetAt(key, value, c.now())
}

// SetAt stores value under key with an explicit fetch time.
func (c *Cache[V]) SetAt(key string, value V, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 || fetchedAt.Before(c.oldest) {
		c.oldest = fetchedAt
	}
	c.entries[normalize(key)] = Entry[V]{Key: key, Value: value, FetchedAt: fetchedAt}
}

// Remove deletes key and reports whether it was present.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := normalize(key)
	_, ok := c.entries[k]
	delete(c.entries, k)
	return ok
}

// RemoveWhere deletes every entry matching pred and returns how many were
// removed.
func (c *Cache[V]) RemoveWhere(pred func(Entry[V]) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, entry := range c.entries {
		if pred(entry) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear deletes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.oldest = time.Time{}
}

// Keys returns the keys of fresh entries, sorted case-insensitively.
func (c *Cache[V]) Keys() []string {
	entries := c.sortedEntries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Values returns the values of fresh entries in key order.
func (c *Cache[V]) Values() []V {
	entries := c.sortedEntries()
	values := make([]V, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values
}

// Len returns the number of fresh entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked()
	return len(c.entries)
}

func (c *Cache[V]) sortedEntries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked()
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	sort.Strings(names)

	entries := make([]Entry[V], len(names))
	for i, k := range names {
		entries[i] = c.entries[k]
	}
	return entries
}

// purgeLocked evicts stale entries when the oldest one has expired.
func (c *Cache[V]) purgeLocked() {
	if len(c.entries) == 0 {
		return
	}
	now := c.now()
	if now.Sub(c.oldest) < c.ttl {
		return
	}

	var oldest time.Time
	evicted := 0
	for k, entry := range c.entries {
		if now.Sub(entry.FetchedAt) >= c.ttl {
			delete(c.entries, k)
			evicted++
			continue
		}
		if oldest.IsZero() || entry.FetchedAt.Before(oldest) {
			oldest = entry.FetchedAt
		}
	}
	c.oldest = oldest

	if evicted > 0 {
		c.logger.Debug().
			Int("evicted", evicted).
			Int("remaining", len(c.entries)).
			Msg("purged stale entries")
	}
}
