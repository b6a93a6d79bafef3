// Package query answers JQL searches with issues or worklogs, reusing
// cached records wherever they are still current.
package query

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/jira-worklog/internal/cache"
	"github.com/nhle/jira-worklog/internal/fetch"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/pagination"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/workflow"
)

// DefaultLoadConcurrency caps concurrent per-record loads.
const DefaultLoadConcurrency = 8

const searchPath = "/rest/api/2/search"

// Steps of the query workflow.
const (
	StepLookup workflow.Step = "lookup"
	StepSearch workflow.Step = "search"
	StepLoad   workflow.Step = "load"
)

// IssueQuery selects full issues.
type IssueQuery struct {
	JQL string
	// Match filters loaded issues. Nil keeps everything.
	Match func(*model.Issue) bool
}

// WorklogQuery selects the own worklogs of every issue matching JQL.
type WorklogQuery struct {
	JQL string
	// Match filters loaded worklogs. Nil keeps everything.
	Match func(model.Worklog) bool
}

// State is the progress of one query.
type State[T any] struct {
	finished workflow.Step

	Search *pagination.State[jira.Issue]
	// Keys are the keys of every search result, before filtering.
	Keys    []string
	Results []T
	// FromCache is set when the query cache answered without a search.
	FromCache bool
}

func (s State[T]) Finished() workflow.Step { return s.finished }

func (s State[T]) Next() workflow.Step {
	switch s.finished {
	case workflow.StepStart:
		return workflow.StepAuthorize
	case workflow.StepAuthorize:
		return StepLookup
	case StepLookup:
		if s.FromCache {
			return workflow.StepDone
		}
		return StepSearch
	case StepSearch:
		if s.Search != nil && s.Search.Next() == workflow.StepDone {
			return StepLoad
		}
		return StepSearch
	default:
		return workflow.StepDone
	}
}

func (s State[T]) Advance(step workflow.Step) State[T] {
	s.finished = step
	return s
}

// Progress weighs the search and the load equally.
func (s State[T]) Progress() float64 {
	switch s.Next() {
	case workflow.StepDone:
		return 1
	case StepLoad:
		return 0.5
	}
	if s.Search != nil {
		return 0.5 * s.Search.Progress()
	}
	return 0
}

// Engine runs queries for one client.
type Engine struct {
	transport       jira.Transport
	auth            workflow.Authorizer
	caches          *cache.Caches
	fetcher         *fetch.Fetcher
	pageSize        int
	loadConcurrency int
	logger          zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize sets maxResults for search and worklog pages.
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithLoadConcurrency caps concurrent per-record loads.
func WithLoadConcurrency(n int) Option {
	return func(e *Engine) { e.loadConcurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. Full issues are loaded through fetcher.
func New(
	transport jira.Transport,
	auth workflow.Authorizer,
	caches *cache.Caches,
	fetcher *fetch.Fetcher,
	opts ...Option,
) *Engine {
	e := &Engine{
		transport:       transport,
		auth:            auth,
		caches:          caches,
		fetcher:         fetcher,
		pageSize:        50,
		loadConcurrency: DefaultLoadConcurrency,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "query").Logger()
	return e
}

// mode binds the query workflow to one kind of payload.
type mode[T any] struct {
	name    string
	jql     string
	queries *cache.QueryCache
	// cached returns the payload of key when every part of it is fresh.
	cached func(key string) ([]T, bool)
	// load returns the payload of a search result.
	load  func(ctx context.Context, lite *model.Issue) ([]T, error)
	match func(T) bool
}

// Issues runs q and returns full issues in search order.
func (e *Engine) Issues(
	ctx context.Context,
	q IssueQuery,
	observe func(State[*model.Issue]),
) ([]*model.Issue, error) {
	m := mode[*model.Issue]{
		name:    "issues",
		jql:     q.JQL,
		queries: e.caches.IssueQueries,
		cached: func(key string) ([]*model.Issue, bool) {
			issue, ok := e.caches.Issues.Get(key)
			if !ok {
				return nil, false
			}
			return []*model.Issue{issue}, true
		},
		load:  e.loadIssue,
		match: q.Match,
	}
	state, err := machine(e, m).Run(ctx, observe)
	if err != nil {
		return nil, err
	}
	return state.Results, nil
}

// Worklogs runs q and returns the worklogs of every matching issue.
func (e *Engine) Worklogs(
	ctx context.Context,
	q WorklogQuery,
	observe func(State[model.Worklog]),
) ([]model.Worklog, error) {
	m := mode[model.Worklog]{
		name:    "worklogs",
		jql:     q.JQL,
		queries: e.caches.WorklogQueries,
		cached: func(key string) ([]model.Worklog, bool) {
			if issue, ok := e.caches.Lites.Get(key); ok {
				return issue.Worklogs, true
			}
			if issue, ok := e.caches.Issues.Get(key); ok {
				return issue.Worklogs, true
			}
			return nil, false
		},
		load:  e.loadWorklogs,
		match: q.Match,
	}
	state, err := machine(e, m).Run(ctx, observe)
	if err != nil {
		return nil, err
	}
	return state.Results, nil
}

func machine[T any](e *Engine, m mode[T]) *workflow.Machine[State[T]] {
	logger := e.logger.With().Str("mode", m.name).Str("jql", m.jql).Logger()

	search := (&pagination.Paginator[jira.Issue]{
		Transport: e.transport,
		Auth:      e.auth,
		Path:      searchPath,
		Query: url.Values{
			"jql":    {m.jql},
			"fields": {strings.Join(jira.LiteFields, ",")},
		},
		Property: "issues",
		PageSize: e.pageSize,
		Logger:   logger,
	}).Machine()

	wf := workflow.New("query", func() State[T] {
		return State[T]{finished: workflow.StepStart}
	}, logger)

	wf.Handle(workflow.StepAuthorize, workflow.AuthorizeStep[State[T]](e.auth))
	wf.Handle(StepLookup, func(_ context.Context, s State[T]) (State[T], error) {
		return lookup(logger, m, s), nil
	})
	wf.Handle(StepSearch, func(ctx context.Context, s State[T]) (State[T], error) {
		next, err := search.Process(ctx, s.Search)
		if err != nil {
			return s, fmt.Errorf("searching %q: %w", m.jql, err)
		}
		s.Search = &next
		return s, nil
	})
	wf.Handle(StepLoad, func(ctx context.Context, s State[T]) (State[T], error) {
		return load(ctx, e.loadConcurrency, m, s)
	})
	return wf
}

// lookup answers from the query cache when every referenced record is
// still cached.
func lookup[T any](logger zerolog.Logger, m mode[T], s State[T]) State[T] {
	entry, ok := m.queries.Get(cache.QueryKey(m.jql))
	if !ok {
		logger.Debug().Msg("query cache miss")
		return s
	}

	var results []T
	for _, key := range entry.Keys {
		payload, ok := m.cached(key)
		if !ok {
			logger.Debug().Str("key", key).Msg("query cache entry has expired records")
			return s
		}
		results = appendMatching(results, payload, m.match)
	}

	logger.Debug().Int("records", len(entry.Keys)).Msg("query cache hit")
	s.Keys = entry.Keys
	s.Results = results
	s.FromCache = true
	return s
}

func load[T any](ctx context.Context, limit int, m mode[T], s State[T]) (State[T], error) {
	records := s.Search.Items
	payloads := make([][]T, len(records))
	keys := make([]string, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, record := range records {
		lite := record.ToModel()
		keys[i] = lite.Key
		g.Go(func() error {
			payload, err := m.load(gctx, lite)
			if err != nil {
				return err
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s, err
	}

	var results []T
	for _, payload := range payloads {
		results = appendMatching(results, payload, m.match)
	}

	m.queries.Put(cache.QueryKey(m.jql), keys)
	s.Keys = keys
	s.Results = results
	return s, nil
}

func appendMatching[T any](dst, src []T, match func(T) bool) []T {
	for _, v := range src {
		if match == nil || match(v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// loadIssue returns the full record of lite, fetching it unless the cached
// copy is newer than the record's last update.
func (e *Engine) loadIssue(ctx context.Context, lite *model.Issue) ([]*model.Issue, error) {
	entry, ok := e.caches.Issues.GetEntry(lite.Key)
	if ok && entry.FetchedAt.After(lite.Updated) {
		return []*model.Issue{entry.Value}, nil
	}

	issue, err := e.fetcher.Get(ctx, fetch.Request{Key: lite.Key, Full: true, Refresh: ok})
	if err != nil {
		return nil, err
	}
	return []*model.Issue{issue}, nil
}

// loadWorklogs returns the own worklogs of lite, loading them unless a
// cached record is newer than the record's last update.
func (e *Engine) loadWorklogs(ctx context.Context, lite *model.Issue) ([]model.Worklog, error) {
	for _, entities := range []*cache.Cache[*model.Issue]{e.caches.Lites, e.caches.Issues} {
		if entry, ok := entities.GetEntry(lite.Key); ok && entry.FetchedAt.After(lite.Updated) {
			return entry.Value.Worklogs, nil
		}
	}

	worklogs, err := fetch.LoadWorklogs(ctx, e.transport, e.auth, lite.Key, e.pageSize, e.logger)
	if err != nil {
		return nil, err
	}

	record := *lite
	record.Worklogs = worklogs
	e.caches.Lites.Set(record.Key, &record)
	return worklogs, nil
}
