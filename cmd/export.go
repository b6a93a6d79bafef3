package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/query"
	"github.com/nhle/jira-worklog/internal/store"
)

func newExportCmd(app *app) *cobra.Command {
	var (
		jql    string
		dbPath string
		list   bool
		match  worklogMatch
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save issues matching a JQL search and their worklogs to SQLite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.exportStore(dbPath)
			if err != nil {
				return err
			}
			if list {
				return listExports(cmd, s)
			}
			if jql == "" {
				return fmt.Errorf("--jql is required unless --list is set")
			}

			predicate, err := match.predicate()
			if err != nil {
				return err
			}

			client, err := app.connect()
			if err != nil {
				return err
			}

			var issues []*model.Issue
			err = runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Exporting...", client.Progress,
				func(ctx context.Context) error {
					var err error
					issues, err = client.FindIssues(ctx, query.IssueQuery{JQL: jql})
					return err
				})
			if err != nil {
				return err
			}

			records, worklogs := flatten(issues, predicate)
			export, err := s.SaveExport(cmd.Context(), jql, records, worklogs)
			if err != nil {
				return err
			}

			app.logger.Info().
				Str("export", export.ID).
				Int("issues", len(records)).
				Int("worklogs", len(worklogs)).
				Msg("export recorded")

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d worklogs from %d issues (export %s)\n",
				len(worklogs), len(records), export.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&jql, "jql", "", "JQL search")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path; defaults to store.path")
	cmd.Flags().BoolVar(&list, "list", false, "List previous exports instead of exporting")
	match.bind(cmd)

	return cmd
}

func listExports(cmd *cobra.Command, s store.Store) error {
	exports, err := s.GetExports(cmd.Context())
	if err != nil {
		return err
	}
	for _, e := range exports {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d worklogs %q\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.ID, e.Worklogs, e.JQL)
	}
	return nil
}

// flatten returns every issue and resolved subtask once, plus the
// worklogs accepted by match across all of them. A nil match keeps every
// worklog.
func flatten(issues []*model.Issue, match func(model.Worklog) bool) ([]*model.Issue, []model.Worklog) {
	seen := make(map[string]bool)
	var records []*model.Issue
	var worklogs []model.Worklog

	var walk func(issue *model.Issue)
	walk = func(issue *model.Issue) {
		if seen[issue.Key] {
			return
		}
		seen[issue.Key] = true
		records = append(records, issue)

		for _, w := range issue.Worklogs {
			if match == nil || match(w) {
				worklogs = append(worklogs, w)
			}
		}
		for _, ref := range issue.Subtasks {
			if ref.Issue != nil {
				walk(ref.Issue)
			}
		}
	}

	for _, issue := range issues {
		walk(issue)
	}
	return records, worklogs
}
