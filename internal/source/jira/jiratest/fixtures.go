package jiratest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nhle/jira-worklog/internal/source/jira"
)

// IssueFixture describes an issue served by the fake server.
type IssueFixture struct {
	ID       string
	Key      string
	Summary  string
	Parent   string
	Subtasks []string
	Created  time.Time
	Updated  time.Time
}

// Issue renders the fixture as the REST representation.
func (f IssueFixture) Issue() jira.Issue {
	issue := jira.Issue{
		ID:   f.ID,
		Key:  f.Key,
		Self: "/rest/api/2/issue/" + f.ID,
		Fields: jira.IssueFields{
			Summary:   f.Summary,
			Status:    jira.Status{Name: "Open", ID: "1"},
			IssueType: jira.IssueType{Name: "Task", ID: "3", Subtask: f.Parent != ""},
			Project:   jira.Project{Key: "PRJ", Name: "Project"},
			Created:   jira.FormatTime(f.Created),
			Updated:   jira.FormatTime(f.Updated),
		},
	}
	if f.Parent != "" {
		issue.Fields.Parent = &jira.IssueLink{Key: f.Parent}
	}
	for _, key := range f.Subtasks {
		issue.Fields.Subtasks = append(issue.Fields.Subtasks, jira.IssueLink{
			Key:  key,
			Self: "/rest/api/2/issue/" + key,
		})
	}
	return issue
}

// Worklog builds a worklog record of seconds logged by author.
func Worklog(id, issueID, author string, started time.Time, seconds int64) jira.Worklog {
	return jira.Worklog{
		ID:      id,
		IssueID: issueID,
		Author: jira.User{
			Key:         author,
			Name:        author,
			DisplayName: author,
			Active:      true,
		},
		Started:          jira.FormatTime(started),
		Created:          jira.FormatTime(started),
		Updated:          jira.FormatTime(started),
		TimeSpentSeconds: seconds,
	}
}

// Page builds a paginated envelope with items stored under property.
func Page[T any](property string, startAt, maxResults, total int, items []T) map[string]interface{} {
	if items == nil {
		items = []T{}
	}
	return map[string]interface{}{
		"startAt":    startAt,
		"maxResults": maxResults,
		"total":      total,
		property:     items,
	}
}

// Paged serves items page by page, honoring the startAt query parameter.
// Every page reports maxResults as pageSize regardless of what the client
// asked for.
func Paged[T any](property string, items []T, pageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		startAt = min(max(startAt, 0), len(items))
		end := min(startAt+pageSize, len(items))

		WriteJSON(w, http.StatusOK, Page(property, startAt, pageSize, len(items), items[startAt:end]))
	}
}

// ServeIssue registers GET /rest/api/2/issue/{key} for f.
func (s *Server) ServeIssue(f IssueFixture) {
	s.HandleJSON(http.MethodGet, "/rest/api/2/issue/"+f.Key, http.StatusOK, f.Issue())
}

// ServeWorklogs registers GET /rest/api/2/issue/{key}/worklog, paged by
// pageSize.
func (s *Server) ServeWorklogs(key string, worklogs []jira.Worklog, pageSize int) {
	s.Handle(http.MethodGet, "/rest/api/2/issue/"+key+"/worklog", Paged("worklogs", worklogs, pageSize))
}
