package jira

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrMalformedResponse is wrapped by every error caused by a response body
// that cannot be parsed or lacks a required property.
var ErrMalformedResponse = errors.New("malformed response")

// AuthError indicates that authentication has failed or expired. It is
// returned when a 401 persists after re-authentication, or when
// re-authentication itself fails.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "auth error: " + e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// BadRequestError is a 400 response. Messages and Fields carry the
// server-provided text verbatim.
type BadRequestError struct {
	Method   string
	Path     string
	Messages []string
	Fields   map[string]string
}

func (e *BadRequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bad request on %s %s", e.Method, e.Path)
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "; %s: %s", name, e.Fields[name])
	}
	return b.String()
}

// IsBadRequest reports whether err is a BadRequestError.
func IsBadRequest(err error) bool {
	var badRequest *BadRequestError
	return errors.As(err, &badRequest)
}

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"unexpected status %d on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Body,
	)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CheckResponse maps a response onto the error taxonomy. It returns nil
// for 2xx responses.
func CheckResponse(resp *Response, method, path string) error {
	if resp.OK() {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return unauthorizedError(resp)
	case http.StatusBadRequest:
		jiraErr := decodeErrorResponse(resp.Body)
		return &BadRequestError{
			Method:   method,
			Path:     path,
			Messages: jiraErr.ErrorMessages,
			Fields:   jiraErr.Errors,
		}
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(resp.Body)),
		}
	}
}

// unauthorizedError builds an AuthError from a 401 response, preferring
// the server's own messages.
func unauthorizedError(resp *Response) error {
	jiraErr := decodeErrorResponse(resp.Body)
	if len(jiraErr.ErrorMessages) > 0 {
		return &AuthError{Message: strings.Join(jiraErr.ErrorMessages, "; ")}
	}
	return &AuthError{Message: "authentication failed (401): check your access token"}
}

func decodeErrorResponse(body []byte) ErrorResponse {
	var jiraErr ErrorResponse
	_ = json.Unmarshal(body, &jiraErr)
	return jiraErr
}
