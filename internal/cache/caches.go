package cache

import (
	"time"

	"github.com/nhle/jira-worklog/internal/model"
)

// Caches bundles the caches shared by every workflow of one client.
//
// Cached issues are shared pointers and must be treated as read-only.
type Caches struct {
	// Issues holds full records: worklogs and subtasks resolved.
	Issues *Cache[*model.Issue]
	// Lites holds issue records carrying only their own worklogs.
	Lites *Cache[*model.Issue]

	IssueQueries   *QueryCache
	WorklogQueries *QueryCache
}

// NewCaches creates the cache bundle.
func NewCaches(issueTTL, queryTTL time.Duration, opts ...Option) *Caches {
	named := func(name string) []Option {
		return append(append([]Option(nil), opts...), WithName(name))
	}
	return &Caches{
		Issues:         New[*model.Issue](issueTTL, named("issues")...),
		Lites:          New[*model.Issue](issueTTL, named("lites")...),
		IssueQueries:   NewQueryCache(queryTTL, named("issue_queries")...),
		WorklogQueries: NewQueryCache(queryTTL, named("worklog_queries")...),
	}
}

// IssueFor resolves the issue a worklog belongs to from whatever record is
// cached for its key.
func (c *Caches) IssueFor(w model.Worklog) (*model.Issue, bool) {
	if issue, ok := c.Issues.Get(w.IssueKey); ok {
		return issue, true
	}
	return c.Lites.Get(w.IssueKey)
}

// InvalidateIssue forgets key everywhere: both entity caches, every query
// that returned it, and the cached parent whose full record embeds it. It
// returns the number of entries removed.
func (c *Caches) InvalidateIssue(key string) int {
	return c.invalidate(key, make(map[string]bool))
}

func (c *Caches) invalidate(key string, seen map[string]bool) int {
	k := normalize(key)
	if key == "" || seen[k] {
		return 0
	}
	seen[k] = true

	var parent string
	for _, entities := range []*Cache[*model.Issue]{c.Issues, c.Lites} {
		if entry, ok := entities.GetEntry(key); ok && entry.Value != nil && parent == "" {
			parent = entry.Value.ParentKey
		}
	}

	removed := 0
	if c.Issues.Remove(key) {
		removed++
	}
	if c.Lites.Remove(key) {
		removed++
	}
	removed += c.IssueQueries.InvalidateEntity(key)
	removed += c.WorklogQueries.InvalidateEntity(key)

	return removed + c.invalidate(parent, seen)
}

// Clear empties every cache.
func (c *Caches) Clear() {
	c.Issues.Clear()
	c.Lites.Clear()
	c.IssueQueries.Clear()
	c.WorklogQueries.Clear()
}
