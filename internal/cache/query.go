package cache

import (
	"time"
)

// QueryKey is the query cache key for a JQL search.
func QueryKey(jql string) string {
	return "jql=" + jql
}

// QueryEntry remembers which entities answered a query.
type QueryEntry struct {
	Query string
	// Keys are the matching entity keys in result order.
	Keys []string

	keySet map[string]struct{}
}

// References reports whether key is among the entry's results.
func (e QueryEntry) References(key string) bool {
	_, ok := e.keySet[normalize(key)]
	return ok
}

// QueryCache maps query strings to the entity keys they returned.
type QueryCache struct {
	entries *Cache[QueryEntry]
}

// NewQueryCache creates an empty query cache whose entries live for ttl.
func NewQueryCache(ttl time.Duration, opts ...Option) *QueryCache {
	return &QueryCache{entries: New[QueryEntry](ttl, opts...)}
}

// Get returns the fresh entry for query.
func (q *QueryCache) Get(query string) (QueryEntry, bool) {
	return q.entries.Get(query)
}

// GetEntry returns the fresh entry for query with its fetch time.
func (q *QueryCache) GetEntry(query string) (Entry[QueryEntry], bool) {
	return q.entries.GetEntry(query)
}

// Put records that query returned keys.
func (q *QueryCache) Put(query string, keys []string) {
	entry := QueryEntry{
		Query:  query,
		Keys:   append([]string(nil), keys...),
		keySet: make(map[string]struct{}, len(keys)),
	}
	for _, k := range keys {
		entry.keySet[normalize(k)] = struct{}{}
	}
	q.entries.Set(query, entry)
}

// InvalidateEntity drops every query whose results include key and returns
// how many were dropped.
func (q *QueryCache) InvalidateEntity(key string) int {
	return q.entries.RemoveWhere(func(e Entry[QueryEntry]) bool {
		return e.Value.References(key)
	})
}

// Remove drops the entry for query.
func (q *QueryCache) Remove(query string) bool {
	return q.entries.Remove(query)
}

// Clear drops every entry.
func (q *QueryCache) Clear() {
	q.entries.Clear()
}

// Len returns the number of fresh entries.
func (q *QueryCache) Len() int {
	return q.entries.Len()
}

// Queries returns the cached query strings.
func (q *QueryCache) Queries() []string {
	return q.entries.Keys()
}
