package tautan

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ambiyansyah-risyal/tautan/tokenstore"
)

// WithBaseURL sets the URL relative request paths are joined onto.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxResponseBytes caps the response body size; larger bodies fail with
// code RESPONSE_TOO_LARGE.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBaseDelay sets the base delay of the default retry policy
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = d
	}
}

// WithMaxRetryDelay sets the ceiling of the default retry policy
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithCache replaces the response cache with a FIFO cache of the given bound and default TTL
func WithCache(ttl time.Duration, maxEntries int) Option {
	return func(c *Client) {
		c.cache = NewFIFOCache(maxEntries)
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithRateLimit allows limit requests per sliding window
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewSlidingWindowLimiter(limit, window)
	}
}

// WithDevMode bypasses client-side rate limiting
func WithDevMode(enabled bool) Option {
	return func(c *Client) {
		c.devMode = enabled
	}
}

// WithTokenStore persists tokens in store
func WithTokenStore(store tokenstore.Store) Option {
	return func(c *Client) {
		c.tokenStore = store
	}
}

// WithRefresher sets how refresh tokens are exchanged
func WithRefresher(refresher Refresher) Option {
	return func(c *Client) {
		c.refresher = refresher
	}
}

// WithRefreshURL uses an EndpointRefresher posting to url, resolved against the base URL
func WithRefreshURL(url string) Option {
	return func(c *Client) {
		c.refreshURL = url
	}
}

// WithProtectedRoutes replaces the routes that require an access token
func WithProtectedRoutes(routes ...ProtectedRoute) Option {
	return func(c *Client) {
		c.gate.routes = routes
	}
}

// WithProtectedCarveOuts replaces the path fragments exempt from protection
func WithProtectedCarveOuts(fragments ...string) Option {
	return func(c *Client) {
		c.gate.carveOuts = fragments
	}
}

// WithEventBus publishes authentication events on bus, which may be shared
func WithEventBus(bus *EventBus) Option {
	return func(c *Client) {
		c.events = bus
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDeduplication coalesces identical concurrent GETs into one upstream call.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = newRequestDeduper()
	}
}

// WithCircuitBreaker enables the circuit breaker
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracerProvider records request spans on tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = tp
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &APIError{
			Kind:    KindValidation,
			Message: "configuration validation failed",
			Code:    CodeInvalidRequest,
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}
	if c.retryBaseDelay <= 0 {
		errors = append(errors, "retryBaseDelay must be positive")
	}
	if c.maxRetryDelay < c.retryBaseDelay {
		errors = append(errors, "maxRetryDelay must be greater than or equal to retryBaseDelay")
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.retryPolicy == nil {
		errors = append(errors, "retryPolicy cannot be nil")
	}

	return errors
}

func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.rateLimiter != nil {
		if c.rateLimiter.Limit() <= 0 {
			errors = append(errors, "rateLimit limit must be positive")
		}
		if c.rateLimiter.Window() <= 0 {
			errors = append(errors, "rateLimit window must be positive")
		}
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cache == nil {
		errors = append(errors, "cache cannot be nil")
	}
	if c.cacheTTL <= 0 {
		errors = append(errors, "cacheTTL must be positive")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.events == nil {
		errors = append(errors, "event bus cannot be nil")
	}
	if c.maxBodyBytes <= 0 {
		errors = append(errors, "maxResponseBytes must be positive")
	}
	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("baseURL %q must be an absolute http(s) URL", c.baseURL))
		}
	}
	for i, route := range c.gate.routes {
		if route.Pattern == "" {
			errors = append(errors, fmt.Sprintf("protectedRoutes[%d] pattern cannot be empty", i))
		}
	}

	return errors
}

func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.maxRetryDelay > 1*time.Hour {
		errors = append(errors, "maxRetryDelay > 1h may cause extremely long delays")
	}
	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.cacheTTL > 24*time.Hour {
		errors = append(errors, "cacheTTL > 24h may cause stale data issues")
	}

	return errors
}
