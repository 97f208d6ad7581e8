// Package transport performs authenticated API calls with a single transparent
// recovery attempt (refresh, then retry once) when the API answers 401.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/gresst/gresst/internal/cli/config"
	"github.com/gresst/gresst/internal/cli/credentials"
)

const tracerName = "github.com/gresst/gresst/internal/cli/transport"

// CredentialsPolicy decides when cookies travel with a request
type CredentialsPolicy string

const (
	// CredentialsInclude sends and stores cookies for every origin
	CredentialsInclude CredentialsPolicy = "include"
	// CredentialsSameOrigin sends and stores cookies only for the API base origin
	CredentialsSameOrigin CredentialsPolicy = "same-origin"
)

// PolicyFor maps the credential mode to the cookie policy
func PolicyFor(mode config.CredentialMode) CredentialsPolicy {
	if mode == config.UseCookieAuth {
		return CredentialsInclude
	}
	return CredentialsSameOrigin
}

// TokenClearer drops the persisted token after a final 401
type TokenClearer interface {
	Clear()
}

// Emitter fires the unauthorized signal
type Emitter interface {
	Emit()
}

// ErrorHandler observes every final HTTPError before it is returned
type ErrorHandler func(err *HTTPError)

// Options configures a Client
type Options struct {
	BaseURL     string
	Mode        config.CredentialMode
	RefreshPath string

	HTTPClient   *http.Client
	Jar          http.CookieJar
	Credentials  credentials.Resolver
	Tokens       TokenClearer
	Unauthorized Emitter

	Logger   zerolog.Logger
	Metrics  *Metrics
	DebugLog *DebugLog
	Tracer   trace.Tracer
}

// Client is the HTTP request layer shared by every API call
type Client struct {
	baseURL     string
	base        *url.URL
	policy      CredentialsPolicy
	refreshPath string

	httpClient   *http.Client
	jar          http.CookieJar
	credentials  credentials.Resolver
	tokens       TokenClearer
	unauthorized Emitter

	log      zerolog.Logger
	metrics  *Metrics
	debugLog *DebugLog
	tracer   trace.Tracer
	refresh  singleflight.Group

	mu           sync.RWMutex
	errorHandler ErrorHandler
}

// RequestOptions describes one call
type RequestOptions struct {
	Method  string
	Headers http.Header
	Body    []byte
}

// Response is a successful (2xx) response with its body fully read
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsJSON reports whether the response declares a JSON content type
func (r *Response) IsJSON() bool {
	return isJSON(r.Header)
}

// Text returns the raw body
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode unmarshals a JSON body into v
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// New creates a Client. The HTTP client's own jar is disabled; cookies go through
// opts.Jar according to the credentials policy.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid API base URL %q", opts.BaseURL)
		}
		base = u
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		httpClient = &copied
	}
	httpClient.Jar = nil

	refreshPath := strings.TrimSpace(opts.RefreshPath)
	if refreshPath == "" {
		refreshPath = config.DefaultRefreshEndpoint
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Client{
		baseURL:      baseURL,
		base:         base,
		policy:       PolicyFor(opts.Mode),
		refreshPath:  refreshPath,
		httpClient:   httpClient,
		jar:          opts.Jar,
		credentials:  opts.Credentials,
		tokens:       opts.Tokens,
		unauthorized: opts.Unauthorized,
		log:          opts.Logger.With().Str("component", "transport").Logger(),
		metrics:      opts.Metrics,
		debugLog:     opts.DebugLog,
		tracer:       tracer,
	}, nil
}

// BaseURL returns the API base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Policy returns the cookie policy in effect
func (c *Client) Policy() CredentialsPolicy {
	return c.policy
}

// SetErrorHandler installs a global handler for final HTTP errors; nil removes it
func (c *Client) SetErrorHandler(fn ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = fn
}

// ResolveURL turns path into an absolute URL; absolute http(s) URLs pass through
func (c *Client) ResolveURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("no API base URL configured for %q", path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path, nil
}

// IsRefreshRequest reports whether path targets the refresh endpoint
func (c *Client) IsRefreshRequest(path string) bool {
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		path = u.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	r := "/" + strings.TrimPrefix(c.refreshPath, "/")
	return path == r || strings.HasSuffix(path, r)
}

// Request performs one API call. A 401 outside the refresh endpoint triggers one
// refresh; when it succeeds the call is retried exactly once with freshly resolved
// credentials. A final non-2xx response is returned as *HTTPError; a final 401 also
// clears the stored token and fires the unauthorized signal first. Network errors
// are returned unchanged.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.ResolveURL(path)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "transport.Request", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		))
	defer span.End()

	resp, err := c.attempt(ctx, method, target, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !c.IsRefreshRequest(target) {
		span.AddEvent("refresh")
		if c.refreshSession(ctx) {
			span.SetAttributes(attribute.Bool("gresst.retried", true))
			resp, err = c.attempt(ctx, method, target, opts)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "network error")
				return nil, err
			}
		}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := newHTTPError(resp.StatusCode, statusText(resp.Response), parseErrorBody(resp))
		c.debugLog.response(target, resp.StatusCode, httpErr.StatusText, false, httpErr.Body)
		span.SetStatus(codes.Error, httpErr.StatusText)
		c.fail(httpErr)
		return nil, httpErr
	}

	c.debugLog.response(target, resp.StatusCode, statusText(resp.Response), true, nil)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: resp.body}, nil
}

// fail runs the side effects of a final error in order: clear the stored token and
// signal (401 only), then the global handler.
func (c *Client) fail(httpErr *HTTPError) {
	if httpErr.Status == http.StatusUnauthorized {
		c.log.Debug().Msg("Unauthorized after refresh, clearing session")
		if c.tokens != nil {
			c.tokens.Clear()
		}
		c.metrics.observeUnauthorized()
		if c.unauthorized != nil {
			c.unauthorized.Emit()
		}
	}

	c.mu.RLock()
	handler := c.errorHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(httpErr)
	}
}

type attemptResponse struct {
	*http.Response
	body []byte
}

func (c *Client) attempt(ctx context.Context, method, target string, opts RequestOptions) (*attemptResponse, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	hasAuth := false
	if c.credentials != nil {
		if token, ok := c.credentials.Resolve(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
			hasAuth = true
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	c.attachCookies(req)
	c.debugLog.request(method, target, c.policy, hasAuth)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeAttempt(method, 0)
		c.debugLog.info("Network error "+method+" "+target, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		c.log.Debug().Err(readErr).Str("url", target).Msg("Failed to read response body")
		data = nil
	}

	c.storeCookies(req.URL, resp)
	c.metrics.observeAttempt(method, resp.StatusCode)
	c.log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Bool("auth_header", hasAuth).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("duration", time.Since(start)).
		Msg("API request")

	return &attemptResponse{Response: resp, body: data}, nil
}

// refreshSession calls the refresh endpoint once; concurrent callers share the
// in-flight attempt. It reports whether the API answered 2xx.
func (c *Client) refreshSession(ctx context.Context) bool {
	v, _, _ := c.refresh.Do("refresh", func() (any, error) {
		return c.doRefresh(context.WithoutCancel(ctx)), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (c *Client) doRefresh(ctx context.Context) bool {
	target, err := c.ResolveURL(c.refreshPath)
	if err != nil {
		c.metrics.observeRefresh("error")
		return false
	}

	ctx, span := c.tracer.Start(ctx, "transport.Refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader("{}"))
	if err != nil {
		c.metrics.observeRefresh("error")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	c.attachCookies(req)
	c.debugLog.request(http.MethodPost, target, c.policy, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("Session refresh failed")
		c.debugLog.info("Refresh network error", err.Error())
		c.metrics.observeRefresh("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "network error")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.storeCookies(req.URL, resp)
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.debugLog.response(target, resp.StatusCode, statusText(resp), ok, nil)

	if ok {
		c.metrics.observeRefresh("success")
		c.log.Debug().Msg("Session refreshed")
	} else {
		c.metrics.observeRefresh("failure")
		span.SetStatus(codes.Error, "refresh rejected")
		c.log.Debug().Int("status", resp.StatusCode).Msg("Session refresh rejected")
	}
	return ok
}

func (c *Client) cookiesAllowed(u *url.URL) bool {
	if c.jar == nil {
		return false
	}
	if c.policy == CredentialsInclude {
		return true
	}
	return c.base != nil && strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func (c *Client) attachCookies(req *http.Request) {
	if !c.cookiesAllowed(req.URL) {
		return
	}
	for _, cookie := range c.jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}
}

func (c *Client) storeCookies(u *url.URL, resp *http.Response) {
	if !c.cookiesAllowed(u) {
		return
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		c.jar.SetCookies(u, cookies)
	}
}

// parseErrorBody decodes JSON bodies, returns text otherwise, and nil when the body
// cannot be parsed
func parseErrorBody(resp *attemptResponse) any {
	if resp.body == nil {
		return nil
	}
	if isJSON(resp.Header) {
		var v any
		if err := json.Unmarshal(resp.body, &v); err != nil {
			return nil
		}
		return v
	}
	return string(resp.body)
}

func isJSON(h http.Header) bool {
	return strings.Contains(h.Get("Content-Type"), "application/json")
}

// statusText returns the reason phrase sent by the server, or the standard one
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

// Get performs a GET and decodes the body into T
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	return do[T](ctx, c, http.MethodGet, path, nil)
}

// Post performs a POST with body marshalled as JSON (nil sends no body)
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return do[T](ctx, c, http.MethodPost, path, body)
}

// Put performs a PUT with body marshalled as JSON
func Put[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return do[T](ctx, c, http.MethodPut, path, body)
}

// Delete performs a DELETE and decodes the body into T
func Delete[T any](ctx context.Context, c *Client, path string) (T, error) {
	return do[T](ctx, c, http.MethodDelete, path, nil)
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	opts := RequestOptions{Method: method}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		opts.Body = data
	}

	resp, err := c.Request(ctx, path, opts)
	if err != nil {
		return zero, err
	}

	return decode[T](c, resp), nil
}

// decode returns the raw text when T is string and the JSON value otherwise;
// undecodable bodies yield the zero value.
func decode[T any](c *Client, resp *Response) T {
	var out T
	if s, ok := any(&out).(*string); ok {
		*s = resp.Text()
		return out
	}
	if len(resp.Body) == 0 {
		return out
	}
	if err := resp.Decode(&out); err != nil {
		c.log.Debug().Err(err).Msg("Discarding undecodable response body")
		var empty T
		return empty
	}
	return out
}
