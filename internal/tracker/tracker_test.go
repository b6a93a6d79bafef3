package tracker_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/jira-worklog/internal/cache"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/query"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/source/jira/jiratest"
	"github.com/nhle/jira-worklog/internal/tracker"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, srv *jiratest.Server, opts ...tracker.Option) *tracker.Client {
	t.Helper()

	session := srv.Session(t)
	return tracker.New(srv.JiraClient(session), session, opts...)
}

func serveIssue(srv *jiratest.Server, f jiratest.IssueFixture) {
	srv.ServeIssue(f)
	srv.ServeWorklogs(f.Key, []jira.Worklog{
		jiratest.Worklog("wl-"+f.Key, f.ID, "bob", f.Created, 1800),
	}, 50)
}

func TestGetIssueReportsProgress(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	serveIssue(srv, jiratest.IssueFixture{ID: "1", Key: "PRJ-1", Created: base, Subtasks: []string{"PRJ-2"}})
	serveIssue(srv, jiratest.IssueFixture{ID: "2", Key: "PRJ-2", Parent: "PRJ-1", Created: base})

	client := newTracker(t, srv)
	issue, err := client.GetIssue(t.Context(), "PRJ-1", true)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, issue.TimeSpent())
	assert.Equal(t, 1.0, client.Progress())
}

func TestAddWorklogRejectsInvalidTimeSpentOffline(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	client := newTracker(t, srv)

	_, err := client.AddWorklog(t.Context(), "PRJ-1", model.NewWorklog{TimeSpent: "3x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidTimeSpent)
	assert.Zero(t, srv.RequestCount())
}

func TestAddWorklogPostsAndInvalidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	srv := jiratest.NewServer(t)
	serveIssue(srv, jiratest.IssueFixture{ID: "1", Key: "PRJ-1", Created: base, Subtasks: []string{"PRJ-2"}})
	serveIssue(srv, jiratest.IssueFixture{ID: "2", Key: "PRJ-2", Parent: "PRJ-1", Created: base})
	srv.Handle(http.MethodPost, "/rest/api/2/issue/PRJ-2/worklog", func(w http.ResponseWriter, r *http.Request) {
		var body jira.WorklogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(2*3600+15*60), body.TimeSpentSeconds)
		assert.Equal(t, "2025-03-11T14:00:00.000+0000", body.Started)
		assert.Equal(t, "review", body.Comment)

		jiratest.WriteJSON(w, http.StatusCreated, jiratest.Worklog("99", "2", "tester", now, body.TimeSpentSeconds))
	})

	client := newTracker(t, srv, tracker.WithClock(func() time.Time { return now }))
	caches := client.Caches()

	_, err := client.GetIssue(t.Context(), "PRJ-1", true)
	require.NoError(t, err)
	caches.WorklogQueries.Put(cache.QueryKey("key = PRJ-2"), []string{"PRJ-2"})
	require.True(t, caches.Issues.ContainsKey("PRJ-2"))

	worklog, err := client.AddWorklog(t.Context(), "PRJ-2", model.NewWorklog{
		TimeSpent: "2h 15m",
		Comment:   "review",
	})
	require.NoError(t, err)

	assert.Equal(t, "99", worklog.ID)
	assert.Equal(t, "PRJ-2", worklog.IssueKey)
	assert.Equal(t, 135*time.Minute, worklog.TimeSpent)
	assert.False(t, caches.Issues.ContainsKey("PRJ-2"))
	assert.False(t, caches.Issues.ContainsKey("PRJ-1"))
	assert.Zero(t, caches.WorklogQueries.Len())
	assert.Equal(t, 1.0, client.Progress())
}

func TestAddWorklogBadRequest(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.HandleJSON(http.MethodPost, "/rest/api/2/issue/PRJ-1/worklog", http.StatusBadRequest, jira.ErrorResponse{
		Errors: map[string]string{"timeLogged": "You must indicate the time spent working."},
	})

	client := newTracker(t, srv)
	_, err := client.AddWorklog(t.Context(), "PRJ-1", model.NewWorklog{TimeSpent: "1h"})
	require.Error(t, err)
	assert.True(t, jira.IsBadRequest(err))
	assert.Contains(t, err.Error(), "You must indicate the time spent working.")
}

func TestFindIssuesAndWorklogs(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	fixtures := []jiratest.IssueFixture{
		{ID: "1", Key: "PRJ-1", Created: base},
		{ID: "2", Key: "PRJ-2", Created: base.Add(time.Hour)},
	}
	records := make([]jira.Issue, len(fixtures))
	for i, f := range fixtures {
		serveIssue(srv, f)
		records[i] = f.Issue()
	}
	srv.Handle(http.MethodGet, "/rest/api/2/search", jiratest.Paged("issues", records, 50))

	client := newTracker(t, srv)

	issues, err := client.FindIssues(t.Context(), query.IssueQuery{JQL: "project = PRJ"})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1.0, client.Progress())

	worklogs, err := client.GetWorklogs(t.Context(), query.WorklogQuery{JQL: "project = PRJ"})
	require.NoError(t, err)
	assert.Len(t, worklogs, 2)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	client := newTracker(t, srv)

	user, err := client.CurrentUser(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Test User", user.DisplayName)
	assert.Equal(t, 1, srv.MyselfCalls())
}

func TestConnectUsesConfig(t *testing.T) {
	t.Parallel()

	srv := jiratest.NewServer(t)
	srv.ServeIssue(jiratest.IssueFixture{ID: "1", Key: "PRJ-1", Created: base})

	cfg, err := model.LoadConfig(t.TempDir() + "/absent.yaml")
	require.NoError(t, err)
	cfg.Jira.BaseURL = srv.URL

	client := tracker.Connect(cfg, jira.StaticToken(jiratest.Token), zerolog.Nop())
	issue, err := client.GetIssue(t.Context(), "PRJ-1", false)
	require.NoError(t, err)
	assert.Equal(t, "PRJ-1", issue.Key)
	assert.Equal(t, 1, srv.MyselfCalls())
}
