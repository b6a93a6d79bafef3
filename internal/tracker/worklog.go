package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/workflow"
)

// StepPost sends the new worklog.
const StepPost workflow.Step = "post"

// addState is the progress of one AddWorklog call.
type addState struct {
	finished workflow.Step
	request  jira.WorklogRequest
	worklog  *model.Worklog
}

func (s addState) Finished() workflow.Step { return s.finished }

func (s addState) Next() workflow.Step {
	switch s.finished {
	case workflow.StepStart:
		return workflow.StepAuthorize
	case workflow.StepAuthorize:
		return StepPost
	default:
		return workflow.StepDone
	}
}

func (s addState) Advance(step workflow.Step) addState {
	s.finished = step
	return s
}

// AddWorklog logs work against issueKey. The time spent is validated
// before anything is sent. On success every cached record and query
// involving the issue is dropped.
func (c *Client) AddWorklog(ctx context.Context, issueKey string, w model.NewWorklog) (model.Worklog, error) {
	c.setProgress(0)

	req, err := jira.NewWorklogRequest(w, c.now())
	if err != nil {
		return model.Worklog{}, err
	}

	path := "/rest/api/2/issue/" + url.PathEscape(issueKey) + "/worklog"
	m := workflow.New("add_worklog", func() addState {
		return addState{finished: workflow.StepStart, request: req}
	}, c.logger.With().Str("key", issueKey).Logger())

	m.Handle(workflow.StepAuthorize, workflow.AuthorizeStep[addState](c.session))
	m.Handle(StepPost, func(ctx context.Context, s addState) (addState, error) {
		resp, err := c.transport.Post(ctx, path, s.request)
		if err != nil {
			return s, fmt.Errorf("adding worklog to %s: %w", issueKey, err)
		}
		if err := jira.CheckResponse(resp, http.MethodPost, path); err != nil {
			return s, fmt.Errorf("adding worklog to %s: %w", issueKey, err)
		}

		created, err := jira.Decode[jira.Worklog](resp.Body, "")
		if err != nil {
			return s, fmt.Errorf("adding worklog to %s: %w", issueKey, err)
		}
		worklog := created.ToModel(issueKey)
		s.worklog = &worklog
		return s, nil
	})

	state, err := m.Run(ctx, observe[addState](c))
	if err != nil {
		return model.Worklog{}, err
	}

	removed := c.caches.InvalidateIssue(issueKey)
	c.logger.Info().
		Str("key", issueKey).
		Str("worklog", state.worklog.ID).
		Str("spent", model.FormatTimeSpent(state.worklog.TimeSpent)).
		Int("invalidated", removed).
		Msg("worklog added")

	return *state.worklog, nil
}
