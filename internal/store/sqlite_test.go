package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/store"
	"github.com/nhle/jira-worklog/internal/testutil"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func worklog(id, issueKey, author string, started time.Time, spent time.Duration) model.Worklog {
	return model.Worklog{
		ID:        id,
		IssueKey:  issueKey,
		IssueID:   "10" + id,
		Author:    model.User{Key: author, Name: author, DisplayName: author + " display"},
		Comment:   "work on " + issueKey,
		Started:   started,
		TimeSpent: spent,
		Created:   started,
		Updated:   started,
	}
}

func TestUpsertAndGetIssue(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	issue := &model.Issue{
		ID:         "1",
		Key:        "PRJ-1",
		Summary:    "first",
		Status:     "Open",
		IssueType:  "Task",
		ProjectKey: "PRJ",
		Assignee:   &model.User{Key: "bob", Name: "bob"},
		Created:    base,
		Updated:    base.Add(time.Hour),
	}
	require.NoError(t, s.UpsertIssues(t.Context(), []*model.Issue{issue}))

	got, err := s.GetIssue(t.Context(), "prj-1")
	require.NoError(t, err)
	assert.Equal(t, "PRJ-1", got.Key)
	assert.Equal(t, "first", got.Summary)
	assert.Equal(t, "bob", got.Assignee.Name)
	assert.True(t, base.Equal(got.Created))
	assert.True(t, base.Add(time.Hour).Equal(got.Updated))

	issue.Summary = "renamed"
	require.NoError(t, s.UpsertIssues(t.Context(), []*model.Issue{issue}))

	got, err = s.GetIssue(t.Context(), "PRJ-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Summary)
}

func TestGetIssueNotFound(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	_, err := s.GetIssue(t.Context(), "PRJ-404")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetWorklogsFilters(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	testutil.SeedWorklogs(t, s,
		worklog("1", "PRJ-1", "bob", base, time.Hour),
		worklog("2", "PRJ-1", "alice", base.Add(24*time.Hour), 30*time.Minute),
		worklog("3", "PRJ-2", "bob", base.Add(48*time.Hour), 2*time.Hour),
	)

	all, err := s.GetWorklogs(t.Context(), store.WorklogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(all))
	assert.Equal(t, time.Hour, all[0].TimeSpent)
	assert.Equal(t, "bob display", all[0].Author.DisplayName)

	key := "prj-1"
	byIssue, err := s.GetWorklogs(t.Context(), store.WorklogFilter{IssueKey: &key})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(byIssue))

	author := "bob"
	byAuthor, err := s.GetWorklogs(t.Context(), store.WorklogFilter{Author: &author, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, ids(byAuthor))

	from, to := base.Add(time.Hour), base.Add(48*time.Hour)
	window, err := s.GetWorklogs(t.Context(), store.WorklogFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(window))

	limited, err := s.GetWorklogs(t.Context(), store.WorklogFilter{Limit: 2, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, ids(limited))
}

func TestUpsertWorklogsReplaces(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	w := worklog("1", "PRJ-1", "bob", base, time.Hour)
	testutil.SeedWorklogs(t, s, w)

	w.TimeSpent = 90 * time.Minute
	require.NoError(t, s.UpsertWorklogs(t.Context(), []model.Worklog{w}))

	got, err := s.GetWorklogs(t.Context(), store.WorklogFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 90*time.Minute, got[0].TimeSpent)
}

func TestRecordExport(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	first, err := s.RecordExport(t.Context(), "project = PRJ", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := s.RecordExport(t.Context(), "assignee = bob", 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	exports, err := s.GetExports(t.Context())
	require.NoError(t, err)
	require.Len(t, exports, 2)

	byID := map[string]store.Export{}
	for _, e := range exports {
		byID[e.ID] = e
	}
	assert.Equal(t, "project = PRJ", byID[first.ID].JQL)
	assert.Equal(t, 3, byID[first.ID].Worklogs)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	s, path := testutil.NewFileStore(t)
	testutil.SeedWorklogs(t, s, worklog("1", "PRJ-1", "bob", base, time.Hour))
	require.NoError(t, s.Close())

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	got, err := s.GetWorklogs(t.Context(), store.WorklogFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSaveExport(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	issues := []*model.Issue{
		{ID: "1", Key: "PRJ-1", Summary: "parent", Created: base, Updated: base},
		{ID: "2", Key: "PRJ-2", Summary: "child", ParentKey: "PRJ-1", Created: base, Updated: base},
	}
	worklogs := []model.Worklog{
		worklog("1", "PRJ-1", "bob", base, time.Hour),
		worklog("2", "PRJ-2", "alice", base.Add(time.Hour), 30*time.Minute),
	}

	export, err := s.SaveExport(t.Context(), "project = PRJ", issues, worklogs)
	require.NoError(t, err)
	assert.NotEmpty(t, export.ID)
	assert.Equal(t, 2, export.Worklogs)

	child, err := s.GetIssue(t.Context(), "PRJ-2")
	require.NoError(t, err)
	assert.Equal(t, "PRJ-1", child.ParentKey)

	got, err := s.GetWorklogs(t.Context(), store.WorklogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(got))

	exports, err := s.GetExports(t.Context())
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, export.ID, exports[0].ID)
	assert.Equal(t, "project = PRJ", exports[0].JQL)
}

func TestSaveExportRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	store.SetIDSource(s, func() string { return "run-1" })
	_, err := s.RecordExport(t.Context(), "earlier", 0)
	require.NoError(t, err)

	// The export row collides with run-1 after issues and worklogs are written.
	_, err = s.SaveExport(t.Context(), "project = PRJ",
		[]*model.Issue{{ID: "1", Key: "PRJ-1", Created: base, Updated: base}},
		[]model.Worklog{worklog("1", "PRJ-1", "bob", base, time.Hour)},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording export")

	_, err = s.GetIssue(t.Context(), "PRJ-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetWorklogs(t.Context(), store.WorklogFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	exports, err := s.GetExports(t.Context())
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "earlier", exports[0].JQL)
}

func TestSaveExportCancelledStoresNothing(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.SaveExport(ctx, "project = PRJ",
		[]*model.Issue{{ID: "1", Key: "PRJ-1", Created: base, Updated: base}},
		[]model.Worklog{worklog("1", "PRJ-1", "bob", base, time.Hour)},
	)
	require.ErrorIs(t, err, context.Canceled)

	exports, err := s.GetExports(t.Context())
	require.NoError(t, err)
	assert.Empty(t, exports)
}

func TestSeededIssuesAreReadable(t *testing.T) {
	t.Parallel()

	s := testutil.NewTestStore(t)
	testutil.SeedIssues(t, s,
		&model.Issue{ID: "1", Key: "PRJ-1", Created: base, Updated: base},
		&model.Issue{ID: "2", Key: "PRJ-2", ParentKey: "PRJ-1", Created: base, Updated: base},
	)

	got, err := s.GetIssue(t.Context(), "PRJ-2")
	require.NoError(t, err)
	assert.Equal(t, "PRJ-1", got.ParentKey)
}

func ids(worklogs []model.Worklog) []string {
	out := make([]string, len(worklogs))
	for i, w := range worklogs {
		out[i] = w.ID
	}
	return out
}
