// Package jiratest provides an in-process fake Jira REST server for tests.
//
// [Server] authenticates every request against a bearer token, serves
// /rest/api/2/myself itself, and dispatches everything else to routes
// registered with [Server.Handle]. It records each routed request and
// tracks the peak number of requests in flight, which lets tests assert
// both "zero network calls" and concurrency bounds.
package jiratest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nhle/jira-worklog/internal/source/jira"
)

// Token is the bearer token a new Server accepts.
const Token = "test-token"

const myselfPath = "/rest/api/2/myself"

// Server is a fake Jira instance.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	routes   map[string]http.HandlerFunc
	requests []string

	myselfCalls  atomic.Int32
	unauthorized atomic.Int32
	inFlight     atomic.Int32
	peak         atomic.Int32
}

// NewServer starts a fake Jira server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		token:  Token,
		routes: make(map[string]http.HandlerFunc),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+token {
		s.unauthorized.Add(1)
		WriteJSON(w, http.StatusUnauthorized, jira.ErrorResponse{
			ErrorMessages: []string{"token rejected"},
		})
		return
	}

	if r.URL.Path == myselfPath {
		s.myselfCalls.Add(1)
		WriteJSON(w, http.StatusOK, jira.User{
			Key:         "tester",
			Name:        "tester",
			DisplayName: "Test User",
			Active:      true,
		})
		return
	}

	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())
	handler := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if handler == nil {
		WriteJSON(w, http.StatusNotFound, jira.ErrorResponse{
			ErrorMessages: []string{"no route for " + r.Method + " " + r.URL.Path},
		})
		return
	}
	handler(w, r)
}

// Handle registers h for method and exact path (query excluded).
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = h
}

// HandleJSON registers a route that always answers status with v.
func (s *Server) HandleJSON(method, path string, status int, v interface{}) {
	s.Handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, status, v)
	})
}

// SetToken changes the token the server accepts, invalidating sessions
// holding the old one.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Requests returns every routed request as "METHOD /path?query".
// Token validation and rejected requests are not included.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// RequestCount returns the number of routed requests.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// CountPrefix counts routed requests starting with prefix, e.g.
// "GET /rest/api/2/search".
func (s *Server) CountPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log and the in-flight peak.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.peak.Store(0)
}

// MyselfCalls returns how many token validations were served.
func (s *Server) MyselfCalls() int {
	return int(s.myselfCalls.Load())
}

// Unauthorized returns how many requests were rejected with 401.
func (s *Server) Unauthorized() int {
	return int(s.unauthorized.Load())
}

// PeakInFlight returns the highest number of routed requests that were
// being served at the same time.
func (s *Server) PeakInFlight() int {
	return int(s.peak.Load())
}

// NewSession returns an unauthorized session whose tokens come from tokens.
func (s *Server) NewSession(tokens jira.TokenSource) *jira.Session {
	auth := jira.NewAuthenticator(
		s.URL, tokens,
		jira.WithAuthHTTPClient(s.Server.Client()),
	)
	return jira.NewSession(auth)
}

// Session returns a session already authorized with Token.
func (s *Server) Session(t testing.TB) *jira.Session {
	t.Helper()

	session := s.NewSession(jira.StaticToken(Token))
	if err := session.Authorize(t.Context()); err != nil {
		t.Fatalf("authorizing test session: %v", err)
	}
	return session
}

// JiraClient returns a client bound to session.
func (s *Server) JiraClient(session *jira.Session) *jira.Client {
	return jira.NewClient(s.URL, session, jira.WithHTTPClient(s.Server.Client()))
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
