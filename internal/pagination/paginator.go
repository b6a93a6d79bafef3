package pagination

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/workflow"
)

// StepFetchPage requests one page.
const StepFetchPage workflow.Step = "fetch_page"

// State is the progress of one pagination run.
type State[T any] struct {
	finished workflow.Step

	Cursor Cursor
	Items  []T
	Pages  int
}

func (s State[T]) Finished() workflow.Step { return s.finished }

func (s State[T]) Next() workflow.Step {
	switch s.finished {
	case workflow.StepStart:
		return workflow.StepAuthorize
	case workflow.StepAuthorize:
		return StepFetchPage
	case StepFetchPage:
		if s.Cursor.ShouldRequestNextPage() {
			return StepFetchPage
		}
		return workflow.StepDone
	default:
		return workflow.StepDone
	}
}

func (s State[T]) Advance(step workflow.Step) State[T] {
	s.finished = step
	return s
}

// Progress delegates to the cursor.
func (s State[T]) Progress() float64 {
	return s.Cursor.Progress()
}

// Paginator fetches every page of a collection resource. Items are decoded
// from Property of each page; an empty Property means the body itself is
// the array and carries no pagination info.
type Paginator[T any] struct {
	Transport jira.Transport
	Auth      workflow.Authorizer
	Path      string
	Query     url.Values
	Property  string
	PageSize  int
	Logger    zerolog.Logger
}

// Machine builds the pagination workflow.
func (p *Paginator[T]) Machine() *workflow.Machine[State[T]] {
	m := workflow.New("paginate", func() State[T] {
		return State[T]{
			finished: workflow.StepStart,
			Cursor:   Cursor{PageSize: p.PageSize},
		}
	}, p.Logger.With().Str("path", p.Path).Logger())

	m.Handle(workflow.StepAuthorize, workflow.AuthorizeStep[State[T]](p.Auth))
	m.Handle(StepFetchPage, p.fetchPage)
	return m
}

// Run fetches every page. observe, when non-nil, sees the state after each
// step. A failed page discards everything accumulated so far.
func (p *Paginator[T]) Run(ctx context.Context, observe func(State[T])) (State[T], error) {
	state, err := p.Machine().Run(ctx, observe)
	if err != nil {
		return State[T]{}, err
	}
	return state, nil
}

// Collect fetches every page and returns the items.
func (p *Paginator[T]) Collect(ctx context.Context) ([]T, error) {
	state, err := p.Run(ctx, nil)
	if err != nil {
		return nil, err
	}
	return state.Items, nil
}

func (p *Paginator[T]) fetchPage(ctx context.Context, s State[T]) (State[T], error) {
	startAt := 0
	if s.Pages > 0 {
		startAt = s.Cursor.EndsAt()
	}

	query := url.Values{}
	maps.Copy(query, p.Query)
	query.Set("startAt", strconv.Itoa(startAt))
	if p.PageSize > 0 {
		query.Set("maxResults", strconv.Itoa(p.PageSize))
	}

	resp, err := p.Transport.Get(ctx, p.Path, query)
	if err != nil {
		return s, err
	}
	if err := jira.CheckResponse(resp, http.MethodGet, p.Path); err != nil {
		return s, err
	}

	cursor := Cursor{StartAt: startAt}
	if p.Property != "" {
		info, err := jira.Decode[jira.PageInfo](resp.Body, "")
		if err != nil {
			return s, err
		}
		if cursor, err = cursorFrom(info, startAt); err != nil {
			return s, err
		}
		if s.Pages > 0 && cursor.ShouldRequestNextPage() && cursor.EndsAt() <= startAt {
			return s, fmt.Errorf("%w: pagination did not advance past %d", jira.ErrMalformedResponse, startAt)
		}
	}

	items, err := jira.Decode[[]T](resp.Body, p.Property)
	if err != nil {
		return s, err
	}

	s.Cursor = cursor
	s.Items = append(slices.Clip(s.Items), items...)
	s.Pages++

	p.Logger.Debug().
		Str("path", p.Path).
		Int("start_at", cursor.StartAt).
		Int("page_size", cursor.PageSize).
		Int("total", cursor.Total).
		Int("items", len(s.Items)).
		Float64("progress", cursor.Progress()).
		Msg("fetched page")

	return s, nil
}

// cursorFrom validates the pagination envelope. Missing fields mean the
// endpoint does not paginate.
func cursorFrom(info jira.PageInfo, requested int) (Cursor, error) {
	cursor := Cursor{StartAt: requested}

	if info.StartAt != nil {
		cursor.StartAt = *info.StartAt
	}
	if info.MaxResults != nil {
		cursor.PageSize = *info.MaxResults
	}
	if info.Total != nil {
		cursor.Total = *info.Total
	}

	if cursor.StartAt < 0 || cursor.PageSize < 0 || cursor.Total < 0 {
		return Cursor{}, fmt.Errorf(
			"%w: negative pagination startAt=%d maxResults=%d total=%d",
			jira.ErrMalformedResponse, cursor.StartAt, cursor.PageSize, cursor.Total,
		)
	}
	return cursor, nil
}
