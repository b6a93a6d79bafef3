package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/jira-worklog/internal/credential"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/source/jira/jiratest"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type cliEnv struct {
	srv  *jiratest.Server
	ring keyring.Keyring
	home string
}

// newCLIEnv points the CLI at a fake Jira server with a stored token.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	env := &cliEnv{
		srv: jiratest.NewServer(t),
		ring: keyring.NewArrayKeyring([]keyring.Item{
			{Key: "jira-token", Data: []byte(jiratest.Token)},
		}),
		home: t.TempDir(),
	}

	t.Setenv("HOME", env.home)
	t.Setenv("JWL_JIRA_BASE_URL", env.srv.URL)
	t.Setenv("JWL_STORE_PATH", filepath.Join(env.home, "worklogs.db"))
	t.Setenv("JWL_LOG_PRETTY", "false")

	return env
}

func (e *cliEnv) execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd(func() (*credential.Store, error) {
		return credential.NewStore(e.ring), nil
	})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// serveTree serves PRJ-1 with subtask PRJ-2, each with one worklog, and a
// search returning PRJ-1 and PRJ-2.
func (e *cliEnv) serveTree() {
	parent := jiratest.IssueFixture{ID: "1", Key: "PRJ-1", Summary: "Parent", Created: base, Subtasks: []string{"PRJ-2"}}
	child := jiratest.IssueFixture{ID: "2", Key: "PRJ-2", Summary: "Child", Parent: "PRJ-1", Created: base.Add(time.Hour)}

	e.srv.ServeIssue(parent)
	e.srv.ServeIssue(child)
	e.srv.ServeWorklogs("PRJ-1", []jira.Worklog{jiratest.Worklog("11", "1", "bob", base, 1800)}, 50)
	e.srv.ServeWorklogs("PRJ-2", []jira.Worklog{jiratest.Worklog("12", "2", "alice", base.Add(24*time.Hour), 3600)}, 50)
	e.srv.Handle(http.MethodGet, "/rest/api/2/search",
		jiratest.Paged("issues", []jira.Issue{parent.Issue(), child.Issue()}, 50))
}

func TestIssueCommandRendersTree(t *testing.T) {
	env := newCLIEnv(t)
	env.serveTree()

	stdout, _, err := env.execute(t, "issue", "PRJ-1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "PRJ-1")
	assert.Contains(t, stdout, "Parent")
	assert.Contains(t, stdout, "Child")
	assert.Contains(t, stdout, "total: 2 worklogs, 1h 30m")
}

func TestIssueCommandLiteJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.serveTree()

	stdout, _, err := env.execute(t, "issue", "PRJ-1", "--lite", "--json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)))

	var issue model.Issue
	require.NoError(t, json.Unmarshal([]byte(stdout), &issue))
	assert.Equal(t, "PRJ-1", issue.Key)
	assert.False(t, issue.Full)
	assert.Zero(t, env.srv.CountPrefix("GET /rest/api/2/issue/PRJ-1/worklog"))
}

func TestFindCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.serveTree()

	stdout, _, err := env.execute(t, "find", "--jql", "project = PRJ")
	require.NoError(t, err)
	assert.Contains(t, stdout, "PRJ-1")
	assert.Contains(t, stdout, "PRJ-2")
	assert.Contains(t, stdout, "2 issues")
}

func TestFindCommandRequiresJQL(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.execute(t, "find")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"jql\" not set")
}

func TestWorklogsCommandFiltersByAuthor(t *testing.T) {
	env := newCLIEnv(t)
	env.serveTree()

	stdout, _, err := env.execute(t, "worklogs", "--jql", "project = PRJ", "--author", "alice", "--json")
	require.NoError(t, err)

	var worklogs []model.Worklog
	require.NoError(t, json.Unmarshal([]byte(stdout), &worklogs))
	require.Len(t, worklogs, 1)
	assert.Equal(t, "12", worklogs[0].ID)
	assert.Equal(t, "PRJ-2", worklogs[0].IssueKey)
}

func TestWorklogsCommandRejectsBadDate(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.execute(t, "worklogs", "--jql", "project = PRJ", "--from", "10/03/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse --from")
	assert.Zero(t, env.srv.RequestCount())
}

func TestAddCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.srv.Handle(http.MethodPost, "/rest/api/2/issue/PRJ-1/worklog", func(w http.ResponseWriter, r *http.Request) {
		var body jira.WorklogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(90*60), body.TimeSpentSeconds)
		assert.Equal(t, "pairing", body.Comment)

		jiratest.WriteJSON(w, http.StatusCreated, jiratest.Worklog("77", "1", "tester", base, body.TimeSpentSeconds))
	})

	stdout, _, err := env.execute(t, "add", "PRJ-1", "--spent", "1h 30m", "--comment", "pairing", "--started", "2025-03-10 09:00")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged 1h 30m on PRJ-1 (worklog 77)")
}

func TestAddCommandRejectsInvalidSpent(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.execute(t, "add", "PRJ-1", "--spent", "soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidTimeSpent)
	assert.Zero(t, env.srv.RequestCount())
}

func TestExportCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.serveTree()

	stdout, _, err := env.execute(t, "export", "--jql", "project = PRJ", "--author", "bob")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 1 worklogs from 2 issues")

	stdout, _, err = env.execute(t, "export", "--list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 worklogs \"project = PRJ\"")
}

func TestExportCommandRequiresJQL(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.execute(t, "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jql is required")
}

func TestLoginStoresTokenAndConfig(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("JWL_JIRA_BASE_URL", "")
	env.ring = keyring.NewArrayKeyring(nil)

	stdout, _, err := env.execute(t, "login", "--url", env.srv.URL+"/", "--token", jiratest.Token)
	require.NoError(t, err)
	assert.Contains(t, stdout, "as Test User")

	item, err := env.ring.Get("jira-token")
	require.NoError(t, err)
	assert.Equal(t, jiratest.Token, string(item.Data))

	data, err := os.ReadFile(filepath.Join(env.home, ".config", "jwl", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), env.srv.URL)
}

func TestLoginDiscardsRejectedToken(t *testing.T) {
	env := newCLIEnv(t)
	env.ring = keyring.NewArrayKeyring(nil)

	_, _, err := env.execute(t, "login", "--token", "wrong")
	require.Error(t, err)
	assert.True(t, jira.IsAuthError(err))

	_, err = env.ring.Get("jira-token")
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestLogout(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.execute(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged out")

	_, err = env.ring.Get("jira-token")
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestCommandsNeedBaseURL(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("JWL_JIRA_BASE_URL", "")

	_, _, err := env.execute(t, "issue", "PRJ-1")
	require.ErrorIs(t, err, errNoBaseURL)
}

func TestWorklogMatch(t *testing.T) {
	started := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	w := model.Worklog{Author: model.User{Key: "bob", Name: "Bob"}, Started: started}

	tests := []struct {
		name  string
		match worklogMatch
		want  bool
	}{
		{"author key", worklogMatch{author: "BOB"}, true},
		{"other author", worklogMatch{author: "alice"}, false},
		{"same day inclusive", worklogMatch{from: "2025-03-10", to: "2025-03-10"}, true},
		{"before window", worklogMatch{from: "2025-03-11"}, false},
		{"after window", worklogMatch{to: "2025-03-09"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			predicate, err := tt.match.predicate()
			require.NoError(t, err)
			assert.Equal(t, tt.want, predicate(w))
		})
	}

	predicate, err := (&worklogMatch{}).predicate()
	require.NoError(t, err)
	assert.Nil(t, predicate)
}

func TestFlattenVisitsEachIssueOnce(t *testing.T) {
	child := &model.Issue{Key: "PRJ-2", Full: true, Worklogs: []model.Worklog{{ID: "2"}}}
	parent := &model.Issue{
		Key:      "PRJ-1",
		Full:     true,
		Worklogs: []model.Worklog{{ID: "1"}},
		Subtasks: []model.SubtaskRef{{Key: "PRJ-2", Issue: child}, {Key: "PRJ-3"}},
	}

	records, worklogs := flatten([]*model.Issue{parent, child}, nil)
	require.Len(t, records, 2)
	assert.Equal(t, "PRJ-1", records[0].Key)
	assert.Equal(t, "PRJ-2", records[1].Key)
	assert.Len(t, worklogs, 2)
}
