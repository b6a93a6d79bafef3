package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/jira-worklog/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now, newID: uuid.NewString}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// issueRow is the issues table layout.
type issueRow struct {
	Key        string    `db:"key"`
	ID         string    `db:"id"`
	Summary    string    `db:"summary"`
	Status     string    `db:"status"`
	IssueType  string    `db:"issue_type"`
	ProjectKey string    `db:"project_key"`
	ParentKey  string    `db:"parent_key"`
	Assignee   string    `db:"assignee"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	ExportedAt time.Time `db:"exported_at"`
}

func (r issueRow) toModel() *model.Issue {
	issue := &model.Issue{
		ID:         r.ID,
		Key:        r.Key,
		Summary:    r.Summary,
		Status:     r.Status,
		IssueType:  r.IssueType,
		ProjectKey: r.ProjectKey,
		ParentKey:  r.ParentKey,
		Created:    r.CreatedAt,
		Updated:    r.UpdatedAt,
	}
	if r.Assignee != "" {
		issue.Assignee = &model.User{Key: r.Assignee, Name: r.Assignee}
	}
	return issue
}

// worklogRow is the worklogs table layout.
type worklogRow struct {
	ID            string    `db:"id"`
	IssueKey      string    `db:"issue_key"`
	IssueID       string    `db:"issue_id"`
	AuthorKey     string    `db:"author_key"`
	AuthorName    string    `db:"author_name"`
	AuthorDisplay string    `db:"author_display"`
	Comment       string    `db:"comment"`
	StartedAt     time.Time `db:"started_at"`
	TimeSpentSec  int64     `db:"time_spent_sec"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r worklogRow) toModel() model.Worklog {
	return model.Worklog{
		ID:       r.ID,
		IssueKey: r.IssueKey,
		IssueID:  r.IssueID,
		Author: model.User{
			Key:         r.AuthorKey,
			Name:        r.AuthorName,
			DisplayName: r.AuthorDisplay,
		},
		Comment:   r.Comment,
		Started:   r.StartedAt,
		TimeSpent: time.Duration(r.TimeSpentSec) * time.Second,
		Created:   r.CreatedAt,
		Updated:   r.UpdatedAt,
	}
}

// inTx runs fn inside one transaction, committing only if fn succeeds.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertIssues inserts or replaces a batch of issue records. Worklogs and
// subtasks are not followed; store them separately.
func (s *SQLiteStore) UpsertIssues(ctx context.Context, issues []*model.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return s.upsertIssues(ctx, tx, issues)
	})
}

func (s *SQLiteStore) upsertIssues(ctx context.Context, tx *sqlx.Tx, issues []*model.Issue) error {
	const query = `
		INSERT OR REPLACE INTO issues (
			key, id, summary, status, issue_type,
			project_key, parent_key, assignee,
			created_at, updated_at, exported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	exportedAt := s.now().UTC()
	for _, issue := range issues {
		var assignee string
		if issue.Assignee != nil {
			assignee = issue.Assignee.Name
		}

		_, err = stmt.ExecContext(ctx,
			issue.Key, issue.ID, issue.Summary, issue.Status, issue.IssueType,
			issue.ProjectKey, issue.ParentKey, assignee,
			issue.Created.UTC(), issue.Updated.UTC(), exportedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting issue %s: %w", issue.Key, err)
		}
	}
	return nil
}

// GetIssue retrieves a single issue record by key.
func (s *SQLiteStore) GetIssue(ctx context.Context, key string) (*model.Issue, error) {
	var row issueRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM issues WHERE key = ? COLLATE NOCASE", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting issue %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting issue %s: %w", key, err)
	}
	return row.toModel(), nil
}

// UpsertWorklogs inserts or replaces a batch of worklogs.
func (s *SQLiteStore) UpsertWorklogs(ctx context.Context, worklogs []model.Worklog) error {
	if len(worklogs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return upsertWorklogs(ctx, tx, worklogs)
	})
}

func upsertWorklogs(ctx context.Context, tx *sqlx.Tx, worklogs []model.Worklog) error {
	const query = `
		INSERT OR REPLACE INTO worklogs (
			id, issue_key, issue_id,
			author_key, author_name, author_display,
			comment, started_at, time_spent_sec,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, w := range worklogs {
		_, err = stmt.ExecContext(ctx,
			w.ID, w.IssueKey, w.IssueID,
			w.Author.Key, w.Author.Name, w.Author.DisplayName,
			w.Comment, w.Started.UTC(), int64(w.TimeSpent/time.Second),
			w.Created.UTC(), w.Updated.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting worklog %s: %w", w.ID, err)
		}
	}
	return nil
}

// GetWorklogs retrieves worklogs matching the filter, ordered by start
// time.
func (s *SQLiteStore) GetWorklogs(ctx context.Context, filter WorklogFilter) ([]model.Worklog, error) {
	var conditions []string
	var args []interface{}

	if filter.IssueKey != nil {
		conditions = append(conditions, "issue_key = ? COLLATE NOCASE")
		args = append(args, *filter.IssueKey)
	}
	if filter.Author != nil {
		conditions = append(conditions, "(author_key = ? OR author_name = ?)")
		args = append(args, *filter.Author, *filter.Author)
	}
	if filter.From != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "started_at < ?")
		args = append(args, filter.To.UTC())
	}

	query := "SELECT * FROM worklogs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY started_at %s, id %s", direction, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []worklogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying worklogs: %w", err)
	}

	worklogs := make([]model.Worklog, len(rows))
	for i, r := range rows {
		worklogs[i] = r.toModel()
	}
	return worklogs, nil
}

// RecordExport stores an export run under a new UUID.
func (s *SQLiteStore) RecordExport(ctx context.Context, jql string, count int) (Export, error) {
	export := s.newExport(jql, count)
	if err := insertExport(ctx, s.db, export); err != nil {
		return Export{}, err
	}
	return export, nil
}

// SaveExport writes issues, worklogs and the export run recording them in
// a single transaction. On error nothing is stored.
func (s *SQLiteStore) SaveExport(ctx context.Context, jql string, issues []*model.Issue, worklogs []model.Worklog) (Export, error) {
	export := s.newExport(jql, len(worklogs))

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.upsertIssues(ctx, tx, issues); err != nil {
			return err
		}
		if err := upsertWorklogs(ctx, tx, worklogs); err != nil {
			return err
		}
		return insertExport(ctx, tx, export)
	})
	if err != nil {
		return Export{}, err
	}
	return export, nil
}

func (s *SQLiteStore) newExport(jql string, count int) Export {
	return Export{
		ID:        s.newID(),
		JQL:       jql,
		Worklogs:  count,
		CreatedAt: s.now().UTC(),
	}
}

func insertExport(ctx context.Context, e sqlx.ExtContext, export Export) error {
	_, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO exports (id, jql, worklog_count, created_at)
		VALUES (:id, :jql, :worklog_count, :created_at)`,
		export,
	)
	if err != nil {
		return fmt.Errorf("recording export: %w", err)
	}
	return nil
}

// GetExports lists export runs, newest first.
func (s *SQLiteStore) GetExports(ctx context.Context) ([]Export, error) {
	var exports []Export
	err := s.db.SelectContext(ctx, &exports,
		"SELECT id, jql, worklog_count, created_at FROM exports ORDER BY created_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	return exports, nil
}
