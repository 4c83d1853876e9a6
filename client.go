package tautan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ambiyansyah-risyal/tautan/tokenstore"
)

// defaultMaxBodyBytes caps how much of a response body is read.
const defaultMaxBodyBytes = 10 << 20

// errBodyTooLarge marks a response body over the configured cap.
var errBodyTooLarge = errors.New("response body too large")

const headerRequestID = "X-Request-ID"

// Client is the single chokepoint for REST calls. It layers response caching,
// client-side rate limiting, coordinated token refresh, retries and error
// classification around net/http. It is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	timeout         time.Duration
	maxBodyBytes    int64
	maxRetries      int
	retryBaseDelay  time.Duration
	maxRetryDelay   time.Duration
	retryPolicy     RetryPolicy
	cache           Cache
	cacheTTL        time.Duration
	rateLimiter     *SlidingWindowLimiter
	devMode         bool
	tokenStore      tokenstore.Store
	tokens          *TokenState
	refresher       Refresher
	refreshURL      string
	coordinator     *RefreshCoordinator
	gate            *routeGate
	events          *EventBus
	middleware      []Middleware
	circuitBreaker  *CircuitBreaker
	metrics         *MetricsCollector
	tracerProvider  trace.TracerProvider
	tracer          *requestTracer
	debug           *DebugConfig
	logger          Logger
	logoutGroup     singleflight.Group
	dedup           *requestDeduper
	sleep           func(context.Context, time.Duration) error
	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:     &http.Client{},
		timeout:        10 * time.Second,
		maxBodyBytes:   defaultMaxBodyBytes,
		maxRetries:     3,
		retryBaseDelay: time.Second,
		maxRetryDelay:  30 * time.Second,
		cache:          NewFIFOCache(100),
		cacheTTL:       5 * time.Minute,
		rateLimiter:    NewSlidingWindowLimiter(100, time.Minute),
		gate: &routeGate{
			routes:    DefaultProtectedRoutes(),
			carveOuts: DefaultProtectedCarveOuts(),
		},
		events:     NewEventBus(),
		middleware: []Middleware{},
		debug:      DefaultDebugConfig(),
		sleep:      sleepContext,
	}

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewDefaultRetryPolicy(client.retryBaseDelay, client.maxRetryDelay)
	}
	client.tokens = NewTokenState(client.tokenStore)
	if client.refresher == nil && client.refreshURL != "" {
		client.refresher = NewEndpointRefresher(client.resolveURL(client.refreshURL), nil)
	}
	client.coordinator = NewRefreshCoordinator(client.tokens, client.refresher, client.events, client.timeout)
	client.coordinator.metrics = client.metrics
	client.coordinator.logger = client.logger
	client.tracer = newRequestTracer(client.tracerProvider)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET. Pass Cached() or CacheKey() to serve it from the cache.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Envelope, error) {
	return c.Request(ctx, http.MethodGet, url, nil, opts...)
}

// Post performs a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Request(ctx, http.MethodPost, url, body, opts...)
}

// Put performs a PUT with body encoded as JSON.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Request(ctx, http.MethodPut, url, body, opts...)
}

// Patch performs a PATCH with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Request(ctx, http.MethodPatch, url, body, opts...)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Envelope, error) {
	return c.Request(ctx, http.MethodDelete, url, nil, opts...)
}

// Request runs one call through the pipeline. Any returned error is an *APIError.
// body may be nil, []byte, json.RawMessage, string, io.Reader or any JSON-encodable value.
func (c *Client) Request(ctx context.Context, method, url string, body any, opts ...RequestOption) (*Envelope, error) {
	env, apiErr := c.do(ctx, method, url, body, opts)
	if apiErr != nil {
		return nil, apiErr
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, opts []RequestOption) (*Envelope, *APIError) {
	start := time.Now()

	req, apiErr := c.prepare(method, rawURL, body, opts)
	if apiErr != nil {
		apiErr.Method = strings.ToUpper(method)
		apiErr.URL = rawURL
		c.metrics.RecordError(apiErr.Kind, apiErr.Method, "unknown")
		return nil, apiErr
	}

	endpoint := req.endpoint
	ctx, span := c.tracer.start(ctx, req.method, req.path, req.protected, req.cached)

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", req.requestID, "method", req.method, "url", req.url, "protected", req.protected)
	}

	c.metrics.RecordRequestStart(req.method, endpoint)
	env, status, cacheHit, apiErr := c.execute(ctx, req)
	c.metrics.RecordRequestEnd(req.method, endpoint)

	duration := time.Since(start)
	c.metrics.RecordRequest(req.method, endpoint, status, duration)
	c.tracer.end(span, req.retries+1, cacheHit, apiErr)

	if apiErr != nil {
		apiErr.RequestID = req.requestID
		apiErr.Method = req.method
		apiErr.URL = req.url
		apiErr.Attempt = req.retries
		apiErr.MaxRetries = c.maxRetries
		apiErr.Duration = duration
		c.metrics.RecordError(apiErr.Kind, req.method, endpoint)

		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Debug("Request failed", "requestID", req.requestID, "kind", string(apiErr.Kind), "status", apiErr.StatusCode, "duration", duration)
		}
		return nil, apiErr
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Request completed", "requestID", req.requestID, "status", status, "success", env.Success, "cacheHit", cacheHit, "duration", duration)
	}
	return env, nil
}

// execute runs the gate and cache check, then fetches, coalescing identical
// GETs when deduplication is enabled.
func (c *Client) execute(ctx context.Context, req *requestAttempt) (*Envelope, int, bool, *APIError) {
	if req.protected && c.tokens.AccessToken(ctx) == "" {
		if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
			c.logger.Debug("Protected route without access token", "requestID", req.requestID, "path", req.path)
		}
		return nil, 0, false, &APIError{
			Kind:      KindAuthentication,
			Message:   defaultMessage(http.StatusUnauthorized),
			Code:      CodeNoAccessToken,
			Timestamp: time.Now(),
		}
	}

	if req.cached {
		if env, found := c.cache.Get(req.cacheKey); found {
			c.metrics.RecordCacheHit(req.method, req.endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", req.requestID, "cacheKey", req.cacheKey)
			}
			return env.Clone(), http.StatusOK, true, nil
		}
		c.metrics.RecordCacheMiss(req.method, req.endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache miss", "requestID", req.requestID, "cacheKey", req.cacheKey)
		}
	}

	if c.dedup != nil && req.method == http.MethodGet {
		env, shared, apiErr := c.dedup.do(ctx, req, c.fetch)
		if shared {
			c.metrics.RecordDeduplicated(req.method, req.endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Debug("Shared in-flight response", "requestID", req.requestID, "url", req.url)
			}
		}
		return env, req.status, false, apiErr
	}

	env, apiErr := c.fetch(ctx, req)
	return env, req.status, false, apiErr
}

// fetch runs the retry loop and stores a cacheable success.
func (c *Client) fetch(ctx context.Context, req *requestAttempt) (*Envelope, *APIError) {
	var env *Envelope
	for {
		var apiErr *APIError
		env, apiErr = c.attempt(ctx, req)
		if apiErr == nil {
			break
		}

		if req.retries >= c.maxRetries || !c.retryPolicy.ShouldRetry(apiErr) {
			return nil, apiErr
		}

		delay := c.retryPolicy.NextDelay(req.retries, apiErr)
		c.metrics.RecordRetry(req.method, req.endpoint, apiErr.Kind)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", req.requestID, "attempt", req.retries+1, "maxRetries", c.maxRetries, "kind", string(apiErr.Kind), "backoff", delay)
		}

		if err := c.sleep(ctx, delay); err != nil {
			return nil, ClassifyTransport(err)
		}
		req.retries++
	}

	if req.cached && env.Success {
		ttl := c.cacheTTL
		if req.cacheTTL > 0 {
			ttl = req.cacheTTL
		}
		c.cache.Set(req.cacheKey, env.Clone(), ttl)
		c.metrics.RecordCacheSize("default", c.cache.Len())
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Response cached", "requestID", req.requestID, "cacheKey", req.cacheKey, "ttl", ttl)
		}
	}

	return env, nil
}

// attempt performs one dispatch, including the single 401 refresh-retry.
func (c *Client) attempt(ctx context.Context, req *requestAttempt) (*Envelope, *APIError) {
	if !c.devMode && c.rateLimiter != nil && !c.rateLimiter.CanMakeRequest() {
		c.metrics.RecordRateLimitDenied(req.method, req.endpoint)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("Rate limit exceeded", "requestID", req.requestID, "path", req.path)
		}
		return nil, &APIError{
			Kind:      KindRateLimit,
			Message:   defaultMessage(http.StatusTooManyRequests),
			Code:      CodeClientRateLimited,
			Timestamp: time.Now(),
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", req.requestID, "path", req.path)
		}
		return nil, &APIError{
			Kind:       KindServer,
			Message:    defaultMessage(http.StatusServiceUnavailable),
			StatusCode: http.StatusServiceUnavailable,
			Code:       CodeCircuitOpen,
			Timestamp:  time.Now(),
		}
	}

	token := c.tokens.AccessToken(ctx)
	status, header, body, err := c.dispatch(ctx, req, token)
	req.status = status
	if errors.Is(err, errBodyTooLarge) {
		c.recordCircuit(nil)
		return nil, &APIError{
			Kind:       KindUnknown,
			Message:    fmt.Sprintf("Response body exceeds %d bytes", c.maxBodyBytes),
			StatusCode: status,
			Code:       CodeResponseTooLarge,
			Timestamp:  time.Now(),
		}
	}
	if err != nil {
		apiErr := ClassifyTransport(err)
		c.recordCircuit(apiErr)
		return nil, apiErr
	}

	if status == http.StatusUnauthorized {
		c.recordCircuit(nil)
		return c.handleUnauthorized(ctx, req, token, body)
	}

	if status < 200 || status >= 300 {
		apiErr := Classify(status, body)
		if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
			apiErr.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
		c.recordCircuit(apiErr)
		return nil, apiErr
	}

	c.recordCircuit(nil)
	return NormalizeEnvelope(body), nil
}

// handleUnauthorized applies the one-refresh-per-call rule to a 401.
func (c *Client) handleUnauthorized(ctx context.Context, req *requestAttempt, sentToken string, body []byte) (*Envelope, *APIError) {
	authErr := Classify(http.StatusUnauthorized, body)
	if req.refreshed {
		return nil, authErr
	}
	req.refreshed = true

	// Another call already replaced the token this request was sent with.
	if current := c.tokens.AccessToken(ctx); current != "" && current != sentToken {
		if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
			c.logger.Debug("Retrying with newer access token", "requestID", req.requestID)
		}
		return c.attempt(ctx, req)
	}

	if c.tokens.RefreshToken(ctx) == "" {
		if req.protected {
			c.forceLogout(ctx, "no refresh token")
		}
		return nil, authErr
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("Access token rejected, refreshing", "requestID", req.requestID, "inFlight", c.coordinator.InFlight())
	}

	if _, err := c.coordinator.Refresh(ctx); err != nil {
		c.forceLogout(ctx, "token refresh failed")
		authErr.Cause = err
		if authErr.Code == "" {
			authErr.Code = CodeSessionExpired
		}
		return nil, authErr
	}

	return c.attempt(ctx, req)
}

// forceLogout clears the session after an unrecoverable 401. Concurrent
// callers share one logout.
func (c *Client) forceLogout(ctx context.Context, reason string) {
	_, _, _ = c.logoutGroup.Do("logout", func() (interface{}, error) {
		if err := c.tokens.Clear(ctx); err != nil && c.logger != nil {
			c.logger.Warn("Failed to clear tokens on forced logout", "error", err.Error())
		}
		c.cache.Clear()
		c.metrics.RecordCacheSize("default", 0)
		c.metrics.RecordLogout(true)
		if c.logger != nil {
			c.logger.Warn("Session ended", "reason", reason)
		}
		c.events.Publish(LoggedOut{Reason: reason, Forced: true})
		return nil, nil
	})
}

func (c *Client) recordCircuit(apiErr *APIError) {
	if c.circuitBreaker == nil {
		return
	}
	c.circuitBreaker.Record(apiErr)
	c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
}

// dispatch sends one HTTP request under its own timeout and reads the body.
func (c *Client) dispatch(ctx context.Context, req *requestAttempt, token string) (int, http.Header, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.hasBody {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, req.url, body)
	if err != nil {
		return 0, nil, nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent())
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.requestID != "" {
		httpReq.Header.Set(headerRequestID, req.requestID)
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	c.tracer.inject(ctx, httpReq.Header)

	resp, err := c.executeMiddleware(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, err
	}
	if int64(len(data)) > c.maxBodyBytes {
		return resp.StatusCode, resp.Header, nil, errBodyTooLarge
	}
	return resp.StatusCode, resp.Header, data, nil
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// prepare resolves the URL, encodes the body and applies request options.
func (c *Client) prepare(method, rawURL string, body any, opts []RequestOption) (*requestAttempt, *APIError) {
	full := c.resolveURL(rawURL)
	u, err := url.Parse(full)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = fmt.Errorf("invalid request URL %q", full)
		}
		return nil, invalidRequest(err)
	}

	req := &requestAttempt{
		method: strings.ToUpper(method),
		url:    full,
		path:   u.Path,
	}
	if req.path == "" {
		req.path = "/"
	}

	data, hasBody, err := encodeBody(body)
	if err != nil {
		return nil, invalidRequest(err)
	}
	req.body = data
	req.hasBody = hasBody

	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}

	if req.method != http.MethodGet {
		req.cached = false
	}
	if req.cached && req.cacheKey == "" {
		req.cacheKey = req.url
	}
	req.protected = c.gate.isProtected(req.method, req.path)
	if req.endpoint == "" {
		req.endpoint = endpointLabel(req.path)
	}

	if c.debug != nil && c.debug.RequestIDGen != nil {
		req.requestID = c.debug.RequestIDGen()
	}
	return req, nil
}

func invalidRequest(cause error) *APIError {
	return &APIError{
		Kind:       KindValidation,
		Message:    defaultMessage(http.StatusBadRequest),
		Code:       CodeInvalidRequest,
		Cause:      cause,
		Timestamp:  time.Now(),
		StatusCode: 0,
	}
}

func encodeBody(body any) ([]byte, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, true, nil
	case json.RawMessage:
		return b, true, nil
	case string:
		return []byte(b), true, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, false, fmt.Errorf("read request body: %w", err)
		}
		return data, true, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, false, fmt.Errorf("encode request body: %w", err)
		}
		return data, true, nil
	}
}

// resolveURL joins relative paths onto the base URL. Absolute URLs pass through.
func (c *Client) resolveURL(raw string) string {
	if c.baseURL == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Login stores credentials and announces the new session.
func (c *Client) Login(ctx context.Context, pair TokenPair) error {
	if pair.AccessToken == "" {
		return invalidRequest(fmt.Errorf("access token is required"))
	}
	if err := c.tokens.Set(ctx, pair); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
		c.logger.Debug("Logged in", "hasRefreshToken", pair.RefreshToken != "")
	}
	c.events.Publish(LoggedIn{AccessToken: pair.AccessToken})
	return nil
}

// Logout clears credentials and the response cache.
func (c *Client) Logout(ctx context.Context) error {
	err := c.tokens.Clear(ctx)
	c.cache.Clear()
	c.metrics.RecordCacheSize("default", 0)
	c.metrics.RecordLogout(false)
	c.events.Publish(LoggedOut{Reason: "logout"})
	if err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether an access token is available.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	return c.tokens.AccessToken(ctx) != ""
}

// Tokens returns the current token pair.
func (c *Client) Tokens(ctx context.Context) (TokenPair, error) {
	return c.tokens.Pair(ctx)
}

// Events returns the bus authentication events are published on.
func (c *Client) Events() *EventBus {
	return c.events
}

// InvalidateCache removes one cached entry.
func (c *Client) InvalidateCache(key string) {
	c.cache.Delete(key)
	c.metrics.RecordCacheSize("default", c.cache.Len())
}

// ClearCache removes every cached entry.
func (c *Client) ClearCache() {
	c.cache.Clear()
	c.metrics.RecordCacheSize("default", 0)
}

// RateLimiter returns the client-side limiter.
func (c *Client) RateLimiter() *SlidingWindowLimiter {
	return c.rateLimiter
}

// CircuitBreaker returns the breaker, or nil when none is configured.
func (c *Client) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

// RefreshCoordinator returns the coordinator guarding token refresh.
func (c *Client) RefreshCoordinator() *RefreshCoordinator {
	return c.coordinator
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
