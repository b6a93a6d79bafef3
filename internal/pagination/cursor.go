// Package pagination collects offset-paginated Jira collections.
package pagination

// Cursor tracks a position in a paginated collection as reported by the
// server.
type Cursor struct {
	StartAt  int
	PageSize int
	Total    int
}

// EndsAt is the offset just past the current page.
func (c Cursor) EndsAt() int {
	return c.StartAt + c.PageSize
}

// ShouldRequestNextPage reports whether the collection continues past the
// current page. It is false when the server did not report pagination.
func (c Cursor) ShouldRequestNextPage() bool {
	if c.Total <= 0 || c.PageSize <= 0 {
		return false
	}
	return c.EndsAt() < c.Total
}

// Progress is the fraction of the collection fetched so far, in [0, 1].
// It is 0 when the total is unknown.
func (c Cursor) Progress() float64 {
	if c.Total <= 0 {
		return 0
	}
	p := float64(c.EndsAt()) / float64(c.Total)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
