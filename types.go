package tautan

import (
	"net/http"
	"time"
)

// Middleware wraps a single dispatch attempt.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

// RequestOption tunes a single call.
type RequestOption func(*requestAttempt)

// TokenPair is an access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// requestAttempt carries the per-call state through the pipeline.
type requestAttempt struct {
	method   string
	url      string
	path     string
	endpoint string
	header   http.Header
	body     []byte
	hasBody  bool
	cached   bool
	cacheKey string
	cacheTTL time.Duration

	protected bool
	retries   int
	refreshed bool
	status    int
	requestID string
}

// Cached marks a GET as cacheable using the request URL as key.
func Cached() RequestOption {
	return func(r *requestAttempt) {
		r.cached = true
	}
}

// CacheKey marks a GET as cacheable under an explicit key.
func CacheKey(key string) RequestOption {
	return func(r *requestAttempt) {
		r.cached = true
		r.cacheKey = key
	}
}

// CacheTTL overrides the cache TTL for this call and marks it cacheable.
func CacheTTL(ttl time.Duration) RequestOption {
	return func(r *requestAttempt) {
		r.cached = true
		r.cacheTTL = ttl
	}
}

// Endpoint sets the metrics label for this call, such as a route template.
// By default identifier segments of the path are replaced with ":id".
func Endpoint(label string) RequestOption {
	return func(r *requestAttempt) {
		r.endpoint = label
	}
}

// WithHeader adds a header to the request; caller headers override defaults.
func WithHeader(key, value string) RequestOption {
	return func(r *requestAttempt) {
		if r.header == nil {
			r.header = make(http.Header)
		}
		r.header.Set(key, value)
	}
}
