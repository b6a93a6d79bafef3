package jira

import (
	"strings"
	"time"

	"github.com/nhle/jira-worklog/internal/model"
)

// timeLayout is the format Jira uses for timestamps in requests.
const timeLayout = "2006-01-02T15:04:05.000-0700"

// LiteFields are the fields requested for lightweight issue records.
var LiteFields = []string{
	"summary", "status", "issuetype", "project", "assignee",
	"reporter", "created", "updated", "parent", "subtasks",
}

// ToModel converts a Jira issue into a lightweight model.Issue. Subtasks
// are returned as unresolved stubs.
func (i Issue) ToModel() *model.Issue {
	issue := &model.Issue{
		ID:         i.ID,
		Key:        i.Key,
		Self:       i.Self,
		Summary:    i.Fields.Summary,
		Status:     i.Fields.Status.Name,
		IssueType:  i.Fields.IssueType.Name,
		ProjectKey: i.Fields.Project.Key,
		Assignee:   i.Fields.Assignee.toModel(),
		Reporter:   i.Fields.Reporter.toModel(),
		Created:    parseJiraTime(i.Fields.Created),
		Updated:    parseJiraTime(i.Fields.Updated),
	}

	if i.Fields.Parent != nil {
		issue.ParentKey = i.Fields.Parent.Key
	}

	if len(i.Fields.Subtasks) > 0 {
		issue.Subtasks = make([]model.SubtaskRef, 0, len(i.Fields.Subtasks))
		for _, s := range i.Fields.Subtasks {
			issue.Subtasks = append(issue.Subtasks, model.SubtaskRef{
				Key:  s.Key,
				Self: s.Self,
			})
		}
	}

	return issue
}

// ToModel converts a Jira worklog, recording issueKey as its owner.
func (w Worklog) ToModel(issueKey string) model.Worklog {
	return model.Worklog{
		ID:        w.ID,
		IssueKey:  issueKey,
		IssueID:   w.IssueID,
		Author:    *w.Author.toModel(),
		Comment:   w.Comment,
		Started:   parseJiraTime(w.Started),
		TimeSpent: time.Duration(w.TimeSpentSeconds) * time.Second,
		Created:   parseJiraTime(w.Created),
		Updated:   parseJiraTime(w.Updated),
	}
}

// ToModel converts a Jira user.
func (u User) ToModel() model.User {
	return *u.toModel()
}

func (u *User) toModel() *model.User {
	if u == nil {
		return nil
	}
	key := u.Key
	if key == "" {
		key = u.AccountID
	}
	return &model.User{
		Key:          key,
		Name:         u.Name,
		DisplayName:  u.DisplayName,
		EmailAddress: u.EmailAddress,
	}
}

// NewWorklogRequest builds the POST body for a new worklog. TimeSpent is
// parsed before anything is sent.
func NewWorklogRequest(w model.NewWorklog, now time.Time) (WorklogRequest, error) {
	spent, err := model.ParseTimeSpent(w.TimeSpent)
	if err != nil {
		return WorklogRequest{}, err
	}

	started := w.Started
	if started.IsZero() {
		started = now
	}

	return WorklogRequest{
		Started:          FormatTime(started),
		TimeSpentSeconds: int64(spent / time.Second),
		Comment:          w.Comment,
	}, nil
}

// FormatTime renders t in Jira's request timestamp format.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// parseJiraTime parses a Jira timestamp string. Jira uses the format
// "2006-01-02T15:04:05.000+0000".
func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	layouts := []string{
		timeLayout,
		"2006-01-02T15:04:05-0700",
		time.RFC3339Nano,
		time.RFC3339,
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// QuoteJQL quotes a value for use in a JQL clause, escaping backslashes
// and double-quotes.
func QuoteJQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
