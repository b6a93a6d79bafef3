package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/query"
	"github.com/nhle/jira-worklog/internal/theme"
)

// worklogMatch holds the client-side worklog filters shared by the
// worklogs and export commands.
type worklogMatch struct {
	author string
	from   string
	to     string
}

func (f *worklogMatch) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.author, "author", "", "Keep only worklogs by this user (key or name)")
	cmd.Flags().StringVar(&f.from, "from", "", "Keep worklogs started on or after this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Keep worklogs started on or before this day (YYYY-MM-DD)")
}

// predicate returns nil when no filter is set.
func (f *worklogMatch) predicate() (func(model.Worklog) bool, error) {
	if f.author == "" && f.from == "" && f.to == "" {
		return nil, nil
	}

	var from, to time.Time
	if f.from != "" {
		day, err := time.ParseInLocation(dateLayout, f.from, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse --from: %w", err)
		}
		from = day
	}
	if f.to != "" {
		day, err := time.ParseInLocation(dateLayout, f.to, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse --to: %w", err)
		}
		to = day.AddDate(0, 0, 1)
	}

	author := f.author
	return func(w model.Worklog) bool {
		if author != "" && !strings.EqualFold(w.Author.Key, author) && !strings.EqualFold(w.Author.Name, author) {
			return false
		}
		if !from.IsZero() && w.Started.Before(from) {
			return false
		}
		if !to.IsZero() && !w.Started.Before(to) {
			return false
		}
		return true
	}, nil
}

func newWorklogsCmd(app *app) *cobra.Command {
	var (
		jql        string
		match      worklogMatch
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "worklogs",
		Short: "List the worklogs of every issue matching a JQL search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			predicate, err := match.predicate()
			if err != nil {
				return err
			}

			client, err := app.connect()
			if err != nil {
				return err
			}

			var worklogs []model.Worklog
			err = runWithProgress(cmd.Context(), cmd.ErrOrStderr(), "Loading worklogs...", client.Progress,
				func(ctx context.Context) error {
					var err error
					worklogs, err = client.GetWorklogs(ctx, query.WorklogQuery{JQL: jql, Match: predicate})
					return err
				})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), worklogs)
			}
			for _, w := range worklogs {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), worklogLine(w))
			}
			renderTotal(cmd.OutOrStdout(), "total", worklogs)
			return nil
		},
	}

	cmd.Flags().StringVar(&jql, "jql", "", "JQL search")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	match.bind(cmd)
	_ = cmd.MarkFlagRequired("jql")

	return cmd
}

var startedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseStarted(s string) (time.Time, error) {
	for _, layout := range startedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse --started %q: expected YYYY-MM-DD HH:MM or RFC 3339", s)
}

func newAddCmd(app *app) *cobra.Command {
	var (
		spent   string
		comment string
		started string
	)

	cmd := &cobra.Command{
		Use:   "add KEY",
		Short: "Log work against an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := model.NewWorklog{TimeSpent: spent, Comment: comment}
			if started != "" {
				t, err := parseStarted(started)
				if err != nil {
					return err
				}
				w.Started = t
			}

			client, err := app.connect()
			if err != nil {
				return err
			}

			worklog, err := client.AddWorklog(cmd.Context(), args[0], w)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged %s on %s (worklog %s)\n",
				theme.DurationStyle.Render(model.FormatTimeSpent(worklog.TimeSpent)),
				theme.KeyStyle.Render(worklog.IssueKey),
				worklog.ID,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&spent, "spent", "", "Time spent in Jira notation, e.g. 1h 30m")
	cmd.Flags().StringVar(&comment, "comment", "", "Worklog comment")
	cmd.Flags().StringVar(&started, "started", "", "Start time (YYYY-MM-DD HH:MM or RFC 3339); defaults to now")
	_ = cmd.MarkFlagRequired("spent")

	return cmd
}
