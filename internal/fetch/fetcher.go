// Package fetch loads an issue together with its worklogs and, recursively,
// its subtasks.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nhle/jira-worklog/internal/cache"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/pagination"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/workflow"
)

// DefaultSubtaskConcurrency caps in-flight subtask fetches per tree.
const DefaultSubtaskConcurrency = 25

// Steps of the fetch workflow.
const (
	StepFetchIssue      workflow.Step = "fetch_issue"
	StepLoadWorklogs    workflow.Step = "load_worklogs"
	StepResolveSubtasks workflow.Step = "resolve_subtasks"
)

// Request selects what to fetch.
type Request struct {
	Key string
	// Full resolves worklogs and subtasks. Otherwise only the issue record
	// with subtask stubs is returned.
	Full bool
	// Refresh ignores cached copies.
	Refresh bool
}

// State is the progress of one fetch.
type State struct {
	finished workflow.Step

	Request Request
	Issue   *model.Issue
	// Cached is set when Issue came from the cache.
	Cached bool
}

func (s State) Finished() workflow.Step { return s.finished }

func (s State) Next() workflow.Step {
	switch s.finished {
	case workflow.StepStart:
		return workflow.StepAuthorize
	case workflow.StepAuthorize:
		return StepFetchIssue
	case StepFetchIssue:
		if s.Cached || !s.Request.Full {
			return workflow.StepDone
		}
		return StepLoadWorklogs
	case StepLoadWorklogs:
		return StepResolveSubtasks
	default:
		return workflow.StepDone
	}
}

func (s State) Advance(step workflow.Step) State {
	s.finished = step
	return s
}

// Progress is a coarse per-step estimate.
func (s State) Progress() float64 {
	switch s.Next() {
	case workflow.StepAuthorize:
		return 0
	case StepFetchIssue:
		return 0.1
	case StepLoadWorklogs:
		return 0.3
	case StepResolveSubtasks:
		return 0.6
	default:
		return 1
	}
}

// Fetcher runs fetch workflows against one Jira instance.
type Fetcher struct {
	transport   jira.Transport
	auth        workflow.Authorizer
	caches      *cache.Caches
	concurrency int64
	pageSize    int
	logger      zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSubtaskConcurrency sets how many subtask fetches one tree may run at
// once.
func WithSubtaskConcurrency(n int) Option {
	return func(f *Fetcher) { f.concurrency = int64(n) }
}

// WithPageSize sets maxResults for worklog pages.
func WithPageSize(n int) Option {
	return func(f *Fetcher) { f.pageSize = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(transport jira.Transport, auth workflow.Authorizer, caches *cache.Caches, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport:   transport,
		auth:        auth,
		caches:      caches,
		concurrency: DefaultSubtaskConcurrency,
		pageSize:    50,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("component", "fetch").Logger()
	return f
}

// Get fetches req.Key and returns the issue.
func (f *Fetcher) Get(ctx context.Context, req Request) (*model.Issue, error) {
	state, err := f.Run(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return state.Issue, nil
}

// Run fetches req.Key, reporting every intermediate state to observe.
func (f *Fetcher) Run(ctx context.Context, req Request, observe func(State)) (State, error) {
	return f.Machine(req).Run(ctx, observe)
}

// Machine builds the workflow for req. Subtask fetches started by it share
// one limiter.
func (f *Fetcher) Machine(req Request) *workflow.Machine[State] {
	return f.machine(req, semaphore.NewWeighted(f.concurrency))
}

func (f *Fetcher) machine(req Request, limiter *semaphore.Weighted) *workflow.Machine[State] {
	logger := f.logger.With().Str("key", req.Key).Logger()

	m := workflow.New("fetch", func() State {
		return State{finished: workflow.StepStart, Request: req}
	}, logger)

	m.Handle(workflow.StepAuthorize, workflow.AuthorizeStep[State](f.auth))
	m.Handle(StepFetchIssue, func(ctx context.Context, s State) (State, error) {
		return f.fetchIssue(ctx, logger, s)
	})
	m.Handle(StepLoadWorklogs, f.loadWorklogs)
	m.Handle(StepResolveSubtasks, func(ctx context.Context, s State) (State, error) {
		return f.resolveSubtasks(ctx, limiter, s)
	})
	return m
}

func (f *Fetcher) fetchIssue(ctx context.Context, logger zerolog.Logger, s State) (State, error) {
	if !s.Request.Refresh {
		if issue, ok := f.cached(s.Request); ok {
			logger.Debug().Msg("cache hit")
			s.Issue = issue
			s.Cached = true
			return s, nil
		}
		logger.Debug().Msg("cache miss")
	}

	path := "/rest/api/2/issue/" + url.PathEscape(s.Request.Key)
	query := url.Values{"fields": {strings.Join(jira.LiteFields, ",")}}

	resp, err := f.transport.Get(ctx, path, query)
	if err != nil {
		return s, fmt.Errorf("fetching issue %s: %w", s.Request.Key, err)
	}
	if err := jira.CheckResponse(resp, http.MethodGet, path); err != nil {
		return s, fmt.Errorf("fetching issue %s: %w", s.Request.Key, err)
	}

	raw, err := jira.Decode[jira.Issue](resp.Body, "")
	if err != nil {
		return s, fmt.Errorf("fetching issue %s: %w", s.Request.Key, err)
	}

	s.Issue = raw.ToModel()
	return s, nil
}

// cached returns a fresh record satisfying req. Lite requests accept any
// cached record; full requests need a full one.
func (f *Fetcher) cached(req Request) (*model.Issue, bool) {
	if issue, ok := f.caches.Issues.Get(req.Key); ok {
		return issue, true
	}
	if !req.Full {
		return f.caches.Lites.Get(req.Key)
	}
	return nil, false
}

func (f *Fetcher) loadWorklogs(ctx context.Context, s State) (State, error) {
	worklogs, err := LoadWorklogs(ctx, f.transport, f.auth, s.Issue.Key, f.pageSize, f.logger)
	if err != nil {
		return s, err
	}

	issue := *s.Issue
	issue.Worklogs = worklogs
	s.Issue = &issue
	return s, nil
}

// LoadWorklogs collects every worklog of issueKey.
func LoadWorklogs(
	ctx context.Context,
	transport jira.Transport,
	auth workflow.Authorizer,
	issueKey string,
	pageSize int,
	logger zerolog.Logger,
) ([]model.Worklog, error) {
	p := &pagination.Paginator[jira.Worklog]{
		Transport: transport,
		Auth:      auth,
		Path:      "/rest/api/2/issue/" + url.PathEscape(issueKey) + "/worklog",
		Property:  "worklogs",
		PageSize:  pageSize,
		Logger:    logger,
	}

	raw, err := p.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading worklogs of %s: %w", issueKey, err)
	}

	worklogs := make([]model.Worklog, len(raw))
	for i, w := range raw {
		worklogs[i] = w.ToModel(issueKey)
	}
	return worklogs, nil
}

func (f *Fetcher) resolveSubtasks(ctx context.Context, limiter *semaphore.Weighted, s State) (State, error) {
	issue := *s.Issue
	refs := slices.Clone(issue.Subtasks)

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		if ref.Resolved() {
			continue
		}
		g.Go(func() error {
			sub, err := f.fetchSubtask(gctx, limiter, ref.Key, s.Request.Refresh)
			if err != nil {
				return fmt.Errorf("fetching subtask %s of %s: %w", ref.Key, issue.Key, err)
			}
			refs[i].Issue = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s, err
	}

	sortSubtasks(refs)
	issue.Subtasks = refs
	issue.Full = true

	f.caches.Issues.Set(issue.Key, &issue)
	s.Issue = &issue
	return s, nil
}

// fetchSubtask runs a nested fetch. A limiter slot is held while the
// subtask's own issue and worklogs are requested and released before it
// resolves its own subtasks.
func (f *Fetcher) fetchSubtask(
	ctx context.Context,
	limiter *semaphore.Weighted,
	key string,
	refresh bool,
) (*model.Issue, error) {
	if err := limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	held := true
	release := func() {
		if held {
			held = false
			limiter.Release(1)
		}
	}
	defer release()

	m := f.machine(Request{Key: key, Full: true, Refresh: refresh}, limiter)

	var (
		state State
		err   error
	)
	state, err = m.Process(ctx, nil)
	for err == nil && !m.IsFinished(state) {
		if state.Next() == StepResolveSubtasks {
			release()
		}
		state, err = m.Process(ctx, &state)
	}
	if err != nil {
		return nil, err
	}
	return state.Issue, nil
}

// sortSubtasks orders resolved references by creation time.
func sortSubtasks(refs []model.SubtaskRef) {
	issues := make([]*model.Issue, 0, len(refs))
	byIssue := make(map[*model.Issue]model.SubtaskRef, len(refs))
	var stubs []model.SubtaskRef
	for _, ref := range refs {
		if ref.Issue == nil {
			stubs = append(stubs, ref)
			continue
		}
		issues = append(issues, ref.Issue)
		byIssue[ref.Issue] = ref
	}

	model.SortByCreated(issues)

	i := 0
	for _, issue := range issues {
		refs[i] = byIssue[issue]
		i++
	}
	for _, ref := range stubs {
		refs[i] = ref
		i++
	}
}
