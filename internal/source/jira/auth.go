package jira

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/jira-worklog/internal/model"
)

// myselfPath is used to validate a token.
const myselfPath = "/rest/api/2/myself"

// TokenSource supplies the access token used for Bearer authentication.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// Provider decides whether a session's credentials are still valid and
// re-authenticates it when they are not.
type Provider interface {
	Authorize(ctx context.Context, s *Session) error
	EnsureAuthorized(ctx context.Context, s *Session) bool
	ErrorForUnauthorized(resp *Response) error
}

// Session holds the credentials shared by every request of one client.
// It is safe for concurrent use; concurrent re-authentications are
// collapsed into one.
type Session struct {
	provider Provider

	authMu sync.Mutex // serializes Authorize

	mu           sync.Mutex
	token        string
	user         *model.User
	authorizedAt time.Time
	generation   uint64
}

// NewSession creates an unauthorized session bound to provider.
func NewSession(provider Provider) *Session {
	return &Session{provider: provider}
}

// Authorize (re-)authenticates the session through its provider. A caller
// that waited while another caller refreshed the session returns without
// authenticating again once the fresh credentials are valid.
func (s *Session) Authorize(ctx context.Context) error {
	_, seen := s.credentials()

	s.authMu.Lock()
	defer s.authMu.Unlock()

	if _, current := s.credentials(); current != seen && s.provider.EnsureAuthorized(ctx, s) {
		return nil
	}
	return s.provider.Authorize(ctx, s)
}

// EnsureAuthorized reports whether the session's credentials are still
// considered valid.
func (s *Session) EnsureAuthorized(ctx context.Context) bool {
	return s.provider.EnsureAuthorized(ctx, s)
}

// ErrorForUnauthorized converts a 401 response into the provider's error.
func (s *Session) ErrorForUnauthorized(resp *Response) error {
	return s.provider.ErrorForUnauthorized(resp)
}

// Token returns the current access token, empty until authorized.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the authenticated user, nil until authorized.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// AuthorizedAt returns when the token was last validated.
func (s *Session) AuthorizedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizedAt
}

// SetCredentials records a validated token. Providers call it from
// Authorize.
func (s *Session) SetCredentials(token string, user *model.User, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.user = user
	s.authorizedAt = at
	s.generation++
}

// credentials returns the token together with the generation it belongs to.
func (s *Session) credentials() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.generation
}

// reauthorize re-authenticates unless another caller already did so
// since generation seen was observed.
func (s *Session) reauthorize(ctx context.Context, seen uint64) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	if _, current := s.credentials(); current != seen {
		return nil
	}
	return s.provider.Authorize(ctx, s)
}

// Authenticator is the Provider for Jira Server/DC personal access
// tokens. A token is validated against /myself and then trusted for
// maxAge; the check in EnsureAuthorized is local.
type Authenticator struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	maxAge     time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithAuthHTTPClient sets the HTTP client used for validation requests.
func WithAuthHTTPClient(c *http.Client) AuthOption {
	return func(a *Authenticator) { a.httpClient = c }
}

// WithMaxAge sets how long a validated token is trusted. Zero means
// forever (until a 401 is seen).
func WithMaxAge(d time.Duration) AuthOption {
	return func(a *Authenticator) { a.maxAge = d }
}

// WithAuthClock overrides the time source.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) { a.now = now }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(l zerolog.Logger) AuthOption {
	return func(a *Authenticator) { a.logger = l }
}

// NewAuthenticator creates a provider validating tokens from tokens
// against the Jira instance at baseURL.
func NewAuthenticator(baseURL string, tokens TokenSource, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxAge:     30 * time.Minute,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize loads a token and validates it with GET /rest/api/2/myself.
func (a *Authenticator) Authorize(ctx context.Context, s *Session) error {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("loading token: %v", err)}
	}
	if token == "" {
		return &AuthError{Message: "no access token configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+myselfPath, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("validating token: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	response := &Response{StatusCode: resp.StatusCode, Body: body}
	if response.StatusCode == http.StatusUnauthorized {
		return a.ErrorForUnauthorized(response)
	}
	if err := CheckResponse(response, http.MethodGet, myselfPath); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}

	me, err := Decode[User](body, "")
	if err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	user := me.ToModel()

	s.SetCredentials(token, &user, a.now())
	a.logger.Info().
		Str("user", user.Name).
		Msg("authenticated")

	return nil
}

// EnsureAuthorized reports whether s holds a token validated within maxAge.
func (a *Authenticator) EnsureAuthorized(_ context.Context, s *Session) bool {
	token, _ := s.credentials()
	if token == "" {
		return false
	}
	if a.maxAge <= 0 {
		return true
	}
	return a.now().Sub(s.AuthorizedAt()) < a.maxAge
}

// ErrorForUnauthorized builds an AuthError for a 401 response.
func (a *Authenticator) ErrorForUnauthorized(resp *Response) error {
	err := unauthorizedError(resp)
	if authErr, ok := err.(*AuthError); ok && !strings.Contains(authErr.Message, a.baseURL) {
		authErr.Message += " for " + a.baseURL
	}
	return err
}
