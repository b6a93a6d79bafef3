package pagination_test

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/jira-worklog/internal/pagination"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/source/jira/jiratest"
)

const searchPath = "/rest/api/2/search"

type item struct {
	ID int `json:"id"`
}

func items(n int) []item {
	out := make([]item, n)
	for i := range out {
		out[i] = item{ID: i}
	}
	return out
}

func newPaginator(t *testing.T, srv *jiratest.Server, query url.Values, pageSize int) *pagination.Paginator[item] {
	t.Helper()

	session := srv.Session(t)
	return &pagination.Paginator[item]{
		Transport: srv.JiraClient(session),
		Auth:      session,
		Path:      searchPath,
		Query:     query,
		Property:  "issues",
		PageSize:  pageSize,
		Logger:    zerolog.Nop(),
	}
}

func TestCursorWithoutTotal(t *testing.T) {
	for _, c := range []pagination.Cursor{
		{},
		{StartAt: 0, PageSize: 50, Total: 0},
		{StartAt: 100, PageSize: 50, Total: -1},
	} {
		assert.False(t, c.ShouldRequestNextPage(), "%+v", c)
		assert.Zero(t, c.Progress(), "%+v", c)
	}
}

func TestCursorProgressIsClamped(t *testing.T) {
	assert.InDelta(t, 0.5, pagination.Cursor{StartAt: 0, PageSize: 50, Total: 100}.Progress(), 1e-9)
	assert.Equal(t, 1.0, pagination.Cursor{StartAt: 100, PageSize: 50, Total: 120}.Progress())
	assert.False(t, pagination.Cursor{StartAt: 100, PageSize: 50, Total: 120}.ShouldRequestNextPage())
	assert.True(t, pagination.Cursor{StartAt: 50, PageSize: 50, Total: 120}.ShouldRequestNextPage())
}

func TestPaginatorCollectsThreePages(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.Handle(http.MethodGet, searchPath, jiratest.Paged("issues", items(120), 50))

	p := newPaginator(t, srv, url.Values{"jql": {"assignee = bob"}}, 50)

	var progress []float64
	state, err := p.Run(t.Context(), func(s pagination.State[item]) {
		progress = append(progress, s.Progress())
	})
	require.NoError(t, err)

	assert.Len(t, state.Items, 120)
	assert.Equal(t, 3, state.Pages)
	assert.Equal(t, pagination.Cursor{StartAt: 100, PageSize: 50, Total: 120}, state.Cursor)
	assert.False(t, state.Cursor.ShouldRequestNextPage())
	assert.Equal(t, 119, state.Items[119].ID)

	assert.Equal(t, []string{
		"GET " + searchPath + "?jql=assignee+%3D+bob&maxResults=50&startAt=0",
		"GET " + searchPath + "?jql=assignee+%3D+bob&maxResults=50&startAt=50",
		"GET " + searchPath + "?jql=assignee+%3D+bob&maxResults=50&startAt=100",
	}, srv.Requests())
	assert.InDeltaSlice(t, []float64{0, 50.0 / 120, 100.0 / 120, 1}, progress, 1e-9)
}

func TestPaginatorRequestCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total, pageSize, requests int
	}{
		{total: 1, pageSize: 50, requests: 1},
		{total: 50, pageSize: 50, requests: 1},
		{total: 51, pageSize: 50, requests: 2},
		{total: 99, pageSize: 10, requests: 10},
		{total: 7, pageSize: 1, requests: 7},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.pageSize), func(t *testing.T) {
			t.Parallel()

			srv := jiratest.NewServer(t)
			srv.Handle(http.MethodGet, searchPath, jiratest.Paged("issues", items(tt.total), tt.pageSize))

			got, err := newPaginator(t, srv, nil, tt.pageSize).Collect(t.Context())
			require.NoError(t, err)
			assert.Len(t, got, tt.total)
			assert.Equal(t, tt.requests, srv.RequestCount())
		})
	}
}

func TestPaginatorDoesNotMutateQuery(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.Handle(http.MethodGet, searchPath, jiratest.Paged("issues", items(30), 10))

	query := url.Values{"jql": {"project = PRJ"}, "fields": {"summary"}}
	_, err := newPaginator(t, srv, query, 10).Collect(t.Context())
	require.NoError(t, err)

	assert.Equal(t, url.Values{"jql": {"project = PRJ"}, "fields": {"summary"}}, query)
}

func TestPaginatorSinglePageWithoutPagination(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.HandleJSON(http.MethodGet, searchPath, http.StatusOK, map[string]interface{}{
		"issues": items(3),
	})

	state, err := newPaginator(t, srv, nil, 50).Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, state.Items, 3)
	assert.Zero(t, state.Progress())
	assert.Equal(t, 1, srv.RequestCount())
}

func TestPaginatorFailureDiscardsPages(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	paged := jiratest.Paged("issues", items(120), 50)
	srv.Handle(http.MethodGet, searchPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "50" {
			jiratest.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
			return
		}
		paged(w, r)
	})

	got, err := newPaginator(t, srv, nil, 50).Collect(t.Context())
	require.Error(t, err)
	assert.Nil(t, got)

	var apiErr *jira.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, 2, srv.RequestCount())
}

func TestPaginatorBadRequestIsVerbatim(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.HandleJSON(http.MethodGet, searchPath, http.StatusBadRequest, jira.ErrorResponse{
		ErrorMessages: []string{"The value 'NOPE' does not exist for the field 'project'."},
	})

	_, err := newPaginator(t, srv, url.Values{"jql": {"project = NOPE"}}, 50).Collect(t.Context())
	require.Error(t, err)
	assert.True(t, jira.IsBadRequest(err))
	assert.Contains(t, err.Error(), "The value 'NOPE' does not exist")
}

func TestPaginatorRejectsNegativePagination(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.HandleJSON(http.MethodGet, searchPath, http.StatusOK,
		jiratest.Page("issues", 0, 50, -3, items(1)))

	_, err := newPaginator(t, srv, nil, 50).Collect(t.Context())
	assert.ErrorIs(t, err, jira.ErrMalformedResponse)
}

func TestPaginatorRejectsStuckCursor(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.HandleJSON(http.MethodGet, searchPath, http.StatusOK,
		jiratest.Page("issues", 0, 50, 120, items(50)))

	_, err := newPaginator(t, srv, nil, 50).Collect(t.Context())
	assert.ErrorIs(t, err, jira.ErrMalformedResponse)
	assert.Equal(t, 2, srv.RequestCount())
}
