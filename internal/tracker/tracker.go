// Package tracker exposes the operations a front end needs: looking up
// issues and worklogs, searching and logging work. Every operation runs a
// workflow to completion and publishes its progress while it runs.
package tracker

import (
	"context"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/jira-worklog/internal/cache"
	"github.com/nhle/jira-worklog/internal/fetch"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/query"
	"github.com/nhle/jira-worklog/internal/source/jira"
	"github.com/nhle/jira-worklog/internal/workflow"
)

// Client is the entry point for one Jira instance.
type Client struct {
	session   *jira.Session
	transport jira.Transport
	caches    *cache.Caches
	fetcher   *fetch.Fetcher
	queries   *query.Engine
	now       func() time.Time
	logger    zerolog.Logger

	progress atomic.Uint64
}

type options struct {
	pageSize           int
	subtaskConcurrency int
	loadConcurrency    int
	issueTTL           time.Duration
	queryTTL           time.Duration
	now                func() time.Time
	logger             zerolog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithPageSize sets maxResults for paginated requests.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithSubtaskConcurrency caps in-flight subtask fetches per issue tree.
func WithSubtaskConcurrency(n int) Option {
	return func(o *options) { o.subtaskConcurrency = n }
}

// WithLoadConcurrency caps concurrent per-record loads in a query.
func WithLoadConcurrency(n int) Option {
	return func(o *options) { o.loadConcurrency = n }
}

// WithCacheTTL sets the entity and query cache lifetimes.
func WithCacheTTL(issues, queries time.Duration) Option {
	return func(o *options) {
		o.issueTTL = issues
		o.queryTTL = queries
	}
}

// WithClock overrides the time source for caches and new worklogs.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Client that sends requests through transport and
// authenticates with session.
func New(transport jira.Transport, session *jira.Session, opts ...Option) *Client {
	o := options{
		pageSize:           50,
		subtaskConcurrency: fetch.DefaultSubtaskConcurrency,
		loadConcurrency:    query.DefaultLoadConcurrency,
		issueTTL:           15 * time.Minute,
		queryTTL:           10 * time.Minute,
		now:                time.Now,
		logger:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	caches := cache.NewCaches(o.issueTTL, o.queryTTL,
		cache.WithClock(o.now),
		cache.WithLogger(o.logger),
	)
	fetcher := fetch.New(transport, session, caches,
		fetch.WithSubtaskConcurrency(o.subtaskConcurrency),
		fetch.WithPageSize(o.pageSize),
		fetch.WithLogger(o.logger),
	)
	queries := query.New(transport, session, caches, fetcher,
		query.WithPageSize(o.pageSize),
		query.WithLoadConcurrency(o.loadConcurrency),
		query.WithLogger(o.logger),
	)

	return &Client{
		session:   session,
		transport: transport,
		caches:    caches,
		fetcher:   fetcher,
		queries:   queries,
		now:       o.now,
		logger:    o.logger.With().Str("component", "tracker").Logger(),
	}
}

// Connect builds a Client from application config. Tokens are read from
// tokens whenever the session (re-)authenticates.
func Connect(cfg *model.AppConfig, tokens jira.TokenSource, logger zerolog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}

	auth := jira.NewAuthenticator(cfg.Jira.BaseURL, tokens,
		jira.WithAuthHTTPClient(httpClient),
		jira.WithMaxAge(cfg.AuthMaxAge()),
		jira.WithAuthLogger(logger),
	)
	session := jira.NewSession(auth)
	transport := jira.NewClient(cfg.Jira.BaseURL, session,
		jira.WithHTTPClient(httpClient),
		jira.WithLogger(logger),
	)

	return New(transport, session,
		WithPageSize(cfg.Jira.PageSize),
		WithSubtaskConcurrency(cfg.Fetch.SubtaskConcurrency),
		WithLoadConcurrency(cfg.Fetch.LoadConcurrency),
		WithCacheTTL(cfg.IssueTTL(), cfg.QueryTTL()),
		WithLogger(logger),
	)
}

// Caches returns the client's caches.
func (c *Client) Caches() *cache.Caches {
	return c.caches
}

// Progress reports how far the running operation is, in [0, 1].
func (c *Client) Progress() float64 {
	return math.Float64frombits(c.progress.Load())
}

func (c *Client) setProgress(p float64) {
	c.progress.Store(math.Float64bits(p))
}

// GetIssue returns key. Full resolves worklogs and subtasks; otherwise the
// record carries subtask stubs only.
func (c *Client) GetIssue(ctx context.Context, key string, full bool) (*model.Issue, error) {
	c.setProgress(0)
	state, err := c.fetcher.Run(ctx, fetch.Request{Key: key, Full: full}, observe[fetch.State](c))
	if err != nil {
		return nil, err
	}
	return state.Issue, nil
}

// GetWorklogs returns the worklogs of every issue matching q.
func (c *Client) GetWorklogs(ctx context.Context, q query.WorklogQuery) ([]model.Worklog, error) {
	c.setProgress(0)
	return c.queries.Worklogs(ctx, q, observe[query.State[model.Worklog]](c))
}

// FindIssues returns the full issues matching q.
func (c *Client) FindIssues(ctx context.Context, q query.IssueQuery) ([]*model.Issue, error) {
	c.setProgress(0)
	return c.queries.Issues(ctx, q, observe[query.State[*model.Issue]](c))
}

// CurrentUser returns the authenticated user, authenticating if needed.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	if !c.session.EnsureAuthorized(ctx) {
		if err := c.session.Authorize(ctx); err != nil {
			return nil, err
		}
	}
	return c.session.User(), nil
}

func observe[S workflow.State[S]](c *Client) func(S) {
	return func(s S) {
		c.setProgress(workflow.Progress(s))
	}
}
