package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/theme"
)

const dateLayout = "2006-01-02"

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func issueLine(issue *model.Issue) string {
	line := fmt.Sprintf("%s %s %s",
		theme.KeyStyle.Render(issue.Key),
		theme.StatusStyle(issue.Status).Render(issue.Status),
		issue.Summary,
	)
	if issue.Full {
		line += " " + theme.DurationStyle.Render(model.FormatTimeSpent(issue.TimeSpent()))
	}
	return line
}

func worklogLine(w model.Worklog) string {
	author := w.Author.DisplayName
	if author == "" {
		author = w.Author.Name
	}

	line := fmt.Sprintf("%s %s %s %s",
		theme.SubtleStyle.Render(w.Started.Local().Format("2006-01-02 15:04")),
		theme.KeyStyle.Render(w.IssueKey),
		theme.DurationStyle.Render(model.FormatTimeSpent(w.TimeSpent)),
		author,
	)
	if comment := strings.TrimSpace(w.Comment); comment != "" {
		line += " " + theme.SubtleStyle.Render(firstLine(comment))
	}
	return line
}

// renderIssue writes the issue, its own worklogs and every subtask below
// it, indented one level per depth.
func renderIssue(w io.Writer, issue *model.Issue, depth int) {
	indent := strings.Repeat("  ", depth)

	if depth == 0 {
		fmt.Fprintln(w, theme.HeaderStyle.Render(issue.Key+" "+issue.Summary))
	}
	fmt.Fprintln(w, indent+issueLine(issue))
	for _, wl := range issue.Worklogs {
		fmt.Fprintln(w, indent+"  "+worklogLine(wl))
	}
	for _, ref := range issue.Subtasks {
		if ref.Issue == nil {
			fmt.Fprintln(w, indent+"  "+theme.KeyStyle.Render(ref.Key))
			continue
		}
		renderIssue(w, ref.Issue, depth+1)
	}
}

func renderTotal(w io.Writer, label string, worklogs []model.Worklog) {
	var total time.Duration
	for _, wl := range worklogs {
		total += wl.TimeSpent
	}
	fmt.Fprintln(w, theme.HelpStyle.Render(fmt.Sprintf("%s: %d worklogs, %s",
		label, len(worklogs), model.FormatTimeSpent(total))))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
