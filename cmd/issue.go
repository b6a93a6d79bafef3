package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/query"
)

func newIssueCmd(app *app) *cobra.Command {
	var (
		lite       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "issue KEY",
		Short: "Show an issue with its worklogs and subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.connect()
			if err != nil {
				return err
			}

			var issue *model.Issue
			err = runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Fetching "+args[0]+"...", client.Progress,
				func(ctx context.Context) error {
					var err error
					issue, err = client.GetIssue(ctx, args[0], !lite)
					return err
				})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), issue)
			}
			renderIssue(cmd.OutOrStdout(), issue, 0)
			if issue.Full {
				renderTotal(cmd.OutOrStdout(), "total", issue.AllWorklogs())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lite, "lite", false, "Skip worklogs and subtasks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	return cmd
}

func newFindCmd(app *app) *cobra.Command {
	var (
		jql        string
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search issues with JQL and resolve them in full",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.connect()
			if err != nil {
				return err
			}

			q := query.IssueQuery{JQL: jql}
			if status != "" {
				q.Match = func(issue *model.Issue) bool {
					return strings.EqualFold(issue.Status, status)
				}
			}

			var issues []*model.Issue
			err = runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Searching...", client.Progress,
				func(ctx context.Context) error {
					var err error
					issues, err = client.FindIssues(ctx, q)
					return err
				})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), issues)
			}
			for _, issue := range issues {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), issueLine(issue))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d issues\n", len(issues))
			return nil
		},
	}

	cmd.Flags().StringVar(&jql, "jql", "", "JQL search")
	cmd.Flags().StringVar(&status, "status", "", "Keep only issues in this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("jql")

	return cmd
}
