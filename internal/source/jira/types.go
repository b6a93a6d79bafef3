package jira

// PageInfo is the pagination envelope shared by search and worklog
// responses. Fields are pointers so an endpoint that omits pagination
// can be told apart from one reporting zero.
type PageInfo struct {
	StartAt    *int `json:"startAt"`
	MaxResults *int `json:"maxResults"`
	Total      *int `json:"total"`
}

// SearchResponse is the response from GET /rest/api/2/search.
type SearchResponse struct {
	PageInfo
	Issues []Issue `json:"issues"`
}

// WorklogResponse is the response from GET /rest/api/2/issue/{key}/worklog.
type WorklogResponse struct {
	PageInfo
	Worklogs []Worklog `json:"worklogs"`
}

// Issue represents a single Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields this client requests.
type IssueFields struct {
	Summary   string      `json:"summary"`
	Status    Status      `json:"status"`
	IssueType IssueType   `json:"issuetype"`
	Project   Project     `json:"project"`
	Assignee  *User       `json:"assignee"`
	Reporter  *User       `json:"reporter"`
	Created   string      `json:"created"`
	Updated   string      `json:"updated"`
	Parent    *IssueLink  `json:"parent,omitempty"`
	Subtasks  []IssueLink `json:"subtasks,omitempty"`
}

// IssueLink is the abbreviated issue embedded as a parent or subtask.
type IssueLink struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// Status represents the status of a Jira issue.
type Status struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// IssueType represents the type of a Jira issue (Bug, Story, etc.).
type IssueType struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Subtask bool   `json:"subtask"`
}

// Project represents a Jira project.
type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User represents a Jira user. Server/DC populates Key and Name, Cloud
// populates AccountID.
type User struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	AccountID    string `json:"accountId,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// Worklog is a single worklog entry.
type Worklog struct {
	ID               string `json:"id"`
	IssueID          string `json:"issueId"`
	Self             string `json:"self"`
	Author           User   `json:"author"`
	Comment          string `json:"comment"`
	Started          string `json:"started"`
	Created          string `json:"created"`
	Updated          string `json:"updated"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
}

// WorklogRequest is the body of POST /rest/api/2/issue/{key}/worklog.
type WorklogRequest struct {
	Started          string `json:"started"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	Comment          string `json:"comment,omitempty"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
