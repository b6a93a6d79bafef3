package store

import (
	"context"
	"time"

	"github.com/nhle/jira-worklog/internal/model"
)

// WorklogFilter controls filtering, sorting, and limiting for worklog
// queries.
type WorklogFilter struct {
	IssueKey *string
	Author   *string    // matches the author's key or name
	From     *time.Time // started at or after
	To       *time.Time // started before
	SortDesc bool       // newest first
	Limit    int
}

// Export records one export run.
type Export struct {
	ID        string    `db:"id"`
	JQL       string    `db:"jql"`
	Worklogs  int       `db:"worklog_count"`
	CreatedAt time.Time `db:"created_at"`
}

// Store persists exported issues and worklogs.
type Store interface {
	UpsertIssues(ctx context.Context, issues []*model.Issue) error
	GetIssue(ctx context.Context, key string) (*model.Issue, error)

	UpsertWorklogs(ctx context.Context, worklogs []model.Worklog) error
	GetWorklogs(ctx context.Context, filter WorklogFilter) ([]model.Worklog, error)

	RecordExport(ctx context.Context, jql string, count int) (Export, error)
	SaveExport(ctx context.Context, jql string, issues []*model.Issue, worklogs []model.Worklog) (Export, error)
	GetExports(ctx context.Context) ([]Export, error)
}
