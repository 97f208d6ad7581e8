package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// HTTPError is returned for every response that is still non-2xx after at most
// one refresh-and-retry.
type HTTPError struct {
	Status     int
	StatusText string
	// Body is the decoded JSON body, the raw text, or nil when it could not be read
	Body any
	// Code is lifted from a string "code" field of a JSON body
	Code string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed: %d %s (%s)", e.Status, e.StatusText, e.Code)
	}
	return fmt.Sprintf("request failed: %d %s", e.Status, e.StatusText)
}

func newHTTPError(status int, statusText string, body any) *HTTPError {
	err := &HTTPError{Status: status, StatusText: statusText, Body: body}
	if m, ok := body.(map[string]any); ok {
		if code, ok := m["code"].(string); ok {
			err.Code = code
		}
	}
	return err
}

// IsUnauthorized reports whether err is an HTTPError with status 401
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == 401
}

// ErrorMessage derives a user-facing message from err: the body's message or error
// field, then the error code, then fallback.
func ErrorMessage(err error, fallback string) string {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return fallback
	}

	if m, ok := httpErr.Body.(map[string]any); ok {
		for _, key := range []string{"message", "error"} {
			if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if httpErr.Code != "" {
		return httpErr.Code
	}
	return fallback
}

// DecodeBody re-decodes an HTTPError body into v, for callers that expect a
// structured error payload. It reports false when the body is not JSON.
func (e *HTTPError) DecodeBody(v any) bool {
	if _, ok := e.Body.(map[string]any); !ok {
		return false
	}
	data, err := json.Marshal(e.Body)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
