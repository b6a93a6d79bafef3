package jira

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Response is a raw HTTP response. Status handling is left to the caller;
// see CheckResponse.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport issues authenticated requests against the Jira REST API.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (*Response, error)
	Post(ctx context.Context, path string, body interface{}) (*Response, error)
	Put(ctx context.Context, path string, body interface{}) (*Response, error)
	Delete(ctx context.Context, path string) (*Response, error)
}

// Client is a thin HTTP client for the Jira Server/DC REST API v2.
// It handles Bearer token authentication and JSON request bodies.
// A 401 triggers exactly one re-authentication of the session followed
// by one retry; nothing else is retried.
type Client struct {
	baseURL    string
	session    *Session
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ Transport = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(client *Client) { client.logger = l }
}

// NewClient creates a new Jira HTTP client. The baseURL should be the
// root URL of the Jira instance (e.g., https://jira.corp.example.com).
func NewClient(baseURL string, session *Session, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// Get performs an HTTP GET request.
func (c *Client) Get(
	ctx context.Context,
	path string,
	query url.Values,
) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post performs an HTTP POST request with a JSON body.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body interface{},
) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put performs an HTTP PUT request with a JSON body.
func (c *Client) Put(
	ctx context.Context,
	path string,
	body interface{},
) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(
	ctx context.Context,
	path string,
) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do builds and sends the request, re-authenticating once on 401.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body interface{},
) (*Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var data []byte
	if body != nil {
		var err error
		if data, err = Encode(body); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		token, generation := c.session.credentials()

		resp, err := c.send(ctx, method, target, token, data)
		if err != nil {
			return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		if attempt > 0 {
			return nil, c.session.ErrorForUnauthorized(resp)
		}

		c.logger.Info().
			Str("method", method).
			Str("path", path).
			Msg("token rejected, re-authenticating")

		if err := c.session.reauthorize(ctx, generation); err != nil {
			return nil, err
		}
	}
}

// send performs a single round trip and reads the whole body.
func (c *Client) send(
	ctx context.Context,
	method string,
	target string,
	token string,
	data []byte,
) (*Response, error) {
	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
