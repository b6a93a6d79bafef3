package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/store"
)

// NewTestStore opens an in-memory export store with the schema applied and
// closes it when the test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewFileStore opens an export store backed by a file in a fresh temporary
// directory, for tests that reopen the database. It returns the store and
// the file path.
func NewFileStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "worklogs.db")
	return openStore(t, path), path
}

func openStore(t *testing.T, dsn string) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("opening export store %s: %v", dsn, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedIssues stores issues as an earlier export would have.
func SeedIssues(t *testing.T, s store.Store, issues ...*model.Issue) {
	t.Helper()

	if err := s.UpsertIssues(t.Context(), issues); err != nil {
		t.Fatalf("seeding issues: %v", err)
	}
}

// SeedWorklogs stores worklogs as an earlier export would have.
func SeedWorklogs(t *testing.T, s store.Store, worklogs ...model.Worklog) {
	t.Helper()

	if err := s.UpsertWorklogs(t.Context(), worklogs); err != nil {
		t.Fatalf("seeding worklogs: %v", err)
	}
}
