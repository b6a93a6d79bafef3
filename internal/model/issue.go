package model

import (
	"sort"
	"time"
)

// User is a Jira account as it appears on issues and worklogs.
type User struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	EmailAddress string `json:"email_address"`
}

// Issue is a tracked work item together with whatever has been resolved
// for it so far.
//
// A lightweight record (as returned by a search) carries subtask stubs
// only. A full record additionally carries its own worklogs and every
// subtask resolved into a full record of its own.
type Issue struct {
	// ID is the numeric Jira identifier.
	ID string `json:"id"`

	// Key is the human-readable identifier (e.g., PROJ-123). Keys are
	// compared case-insensitively.
	Key string `json:"key"`

	// Self is the REST URL of the issue.
	Self string `json:"self"`

	Summary    string `json:"summary"`
	Status     string `json:"status"`
	IssueType  string `json:"issue_type"`
	ProjectKey string `json:"project_key"`

	// ParentKey is set on subtasks and empty otherwise.
	ParentKey string `json:"parent_key,omitempty"`

	Assignee *User `json:"assignee,omitempty"`
	Reporter *User `json:"reporter,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	// Worklogs holds the issue's own worklogs. Nil until loaded.
	Worklogs []Worklog `json:"worklogs,omitempty"`

	// Subtasks holds one reference per subtask, resolved or not.
	Subtasks []SubtaskRef `json:"subtasks,omitempty"`

	// Full reports whether worklogs and subtasks have been resolved.
	Full bool `json:"full"`
}

// SubtaskRef points at a subtask. Issue is nil while the reference is an
// unresolved stub holding only the key and link.
type SubtaskRef struct {
	Key   string `json:"key"`
	Self  string `json:"self"`
	Issue *Issue `json:"issue,omitempty"`
}

// Resolved reports whether the reference already carries a full record.
func (r SubtaskRef) Resolved() bool {
	return r.Issue != nil && r.Issue.Full
}

// HasUnresolvedSubtasks reports whether any subtask is still a stub.
func (i *Issue) HasUnresolvedSubtasks() bool {
	for _, ref := range i.Subtasks {
		if !ref.Resolved() {
			return true
		}
	}
	return false
}

// TimeSpent sums the issue's own worklogs and, recursively, the worklogs
// of every resolved subtask.
func (i *Issue) TimeSpent() time.Duration {
	var total time.Duration
	for _, w := range i.Worklogs {
		total += w.TimeSpent
	}
	for _, ref := range i.Subtasks {
		if ref.Issue != nil {
			total += ref.Issue.TimeSpent()
		}
	}
	return total
}

// AllWorklogs returns the issue's worklogs followed by those of its
// resolved subtasks, depth first.
func (i *Issue) AllWorklogs() []Worklog {
	out := make([]Worklog, 0, len(i.Worklogs))
	out = append(out, i.Worklogs...)
	for _, ref := range i.Subtasks {
		if ref.Issue != nil {
			out = append(out, ref.Issue.AllWorklogs()...)
		}
	}
	return out
}

// SortByCreated orders issues by creation time, oldest first. Ties are
// broken by key so the order does not depend on fetch completion order.
func SortByCreated(issues []*Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		if issues[a].Created.Equal(issues[b].Created) {
			return issues[a].Key < issues[b].Key
		}
		return issues[a].Created.Before(issues[b].Created)
	})
}

// Worklog is a single time entry logged against an issue.
type Worklog struct {
	ID string `json:"id"`

	// IssueKey identifies the issue the worklog belongs to. It is a plain
	// foreign key; resolve it through a lookup (e.g. the issue caches).
	IssueKey string `json:"issue_key"`

	// IssueID is the numeric identifier reported by the server.
	IssueID string `json:"issue_id"`

	Author    User          `json:"author"`
	Comment   string        `json:"comment,omitempty"`
	Started   time.Time     `json:"started"`
	TimeSpent time.Duration `json:"time_spent"`
	Created   time.Time     `json:"created"`
	Updated   time.Time     `json:"updated"`
}

// NewWorklog is the payload for logging time against an issue.
type NewWorklog struct {
	// Started is when the work began. Zero means now.
	Started time.Time

	// TimeSpent uses Jira notation, e.g. "1h 30m" or "2d".
	TimeSpent string

	Comment string
}
