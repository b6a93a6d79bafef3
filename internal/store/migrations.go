package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	key         TEXT PRIMARY KEY,
	id          TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	issue_type  TEXT NOT NULL DEFAULT '',
	project_key TEXT NOT NULL DEFAULT '',
	parent_key  TEXT NOT NULL DEFAULT '',
	assignee    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	exported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS worklogs (
	id             TEXT PRIMARY KEY,
	issue_key      TEXT NOT NULL,
	issue_id       TEXT NOT NULL DEFAULT '',
	author_key     TEXT NOT NULL DEFAULT '',
	author_name    TEXT NOT NULL DEFAULT '',
	author_display TEXT NOT NULL DEFAULT '',
	comment        TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL,
	time_spent_sec INTEGER NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_parent_key ON issues(parent_key);
CREATE INDEX IF NOT EXISTS idx_worklogs_issue_key ON worklogs(issue_key);
CREATE INDEX IF NOT EXISTS idx_worklogs_started_at ON worklogs(started_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS exports (
	id            TEXT PRIMARY KEY,
	jql           TEXT NOT NULL,
	worklog_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_worklogs_author
	ON worklogs(author_key, author_name);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
