package tautan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
	ErrNoRefreshToken = errors.New("tautan: no refresh token available")

	// ErrNoRefresher is returned when no Refresher is configured.
	ErrNoRefresher = errors.New("tautan: no token refresher configured")

	// ErrEmptyAccessToken is returned when a refresh response carries no access token.
	ErrEmptyAccessToken = errors.New("tautan: refresh response missing access token")
)

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f(ctx, refreshToken)
}

// RefreshCoordinator guarantees at most one refresh is in flight. Every caller
// that arrives while a refresh runs waits for it and receives the same result.
type RefreshCoordinator struct {
	group     singleflight.Group
	inFlight  atomic.Bool
	calls     atomic.Int64
	tokens    *TokenState
	refresher Refresher
	events    *EventBus
	timeout   time.Duration
	metrics   *MetricsCollector
	logger    Logger
}

// NewRefreshCoordinator wires a coordinator over tokens. timeout bounds each refresh.
func NewRefreshCoordinator(tokens *TokenState, refresher Refresher, events *EventBus, timeout time.Duration) *RefreshCoordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RefreshCoordinator{
		tokens:    tokens,
		refresher: refresher,
		events:    events,
		timeout:   timeout,
	}
}

// Refresh returns a fresh access token, joining an in-flight refresh if there is one.
// On failure the stored tokens have already been cleared.
func (rc *RefreshCoordinator) Refresh(ctx context.Context) (string, error) {
	ch := rc.group.DoChan(refreshKey, func() (interface{}, error) {
		rc.inFlight.Store(true)
		defer rc.inFlight.Store(false)

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return rc.run(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			rc.metrics.RecordRefreshShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InFlight reports whether a refresh is currently running.
func (rc *RefreshCoordinator) InFlight() bool {
	return rc.inFlight.Load()
}

// Calls reports how many refresh exchanges have been issued.
func (rc *RefreshCoordinator) Calls() int64 {
	return rc.calls.Load()
}

func (rc *RefreshCoordinator) run(ctx context.Context) (string, error) {
	refreshToken := rc.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		return "", rc.fail(ctx, ErrNoRefreshToken)
	}
	if rc.refresher == nil {
		return "", rc.fail(ctx, ErrNoRefresher)
	}

	rc.calls.Add(1)
	start := time.Now()
	pair, err := rc.refresher.Refresh(ctx, refreshToken)
	if err == nil && pair.AccessToken == "" {
		err = ErrEmptyAccessToken
	}
	if err != nil {
		rc.metrics.RecordRefresh("failure", time.Since(start))
		return "", rc.fail(ctx, err)
	}
	rc.metrics.RecordRefresh("success", time.Since(start))

	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := rc.tokens.Set(ctx, pair); err != nil && rc.logger != nil {
		rc.logger.Warn("Failed to persist refreshed tokens", "error", err.Error())
	}

	rc.events.Publish(TokenRefreshed{AccessToken: pair.AccessToken})
	return pair.AccessToken, nil
}

func (rc *RefreshCoordinator) fail(ctx context.Context, cause error) error {
	if err := rc.tokens.Clear(ctx); err != nil && rc.logger != nil {
		rc.logger.Warn("Failed to clear persisted tokens", "error", err.Error())
	}
	if rc.logger != nil {
		rc.logger.Warn("Token refresh failed", "error", cause.Error())
	}
	return cause
}

// EndpointRefresher posts the refresh token as JSON to a refresh URL. It uses
// its own http.Client so the call never re-enters the request pipeline.
type EndpointRefresher struct {
	URL        string
	HTTPClient *http.Client
	Header     http.Header
}

// NewEndpointRefresher creates a refresher for url. A nil client uses a 10s-timeout default.
func NewEndpointRefresher(url string, client *http.Client) *EndpointRefresher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EndpointRefresher{URL: url, HTTPClient: client}
}

type refreshResponse struct {
	AccessToken       string          `json:"access_token"`
	AccessTokenCamel  string          `json:"accessToken"`
	RefreshToken      string          `json:"refresh_token"`
	RefreshTokenCamel string          `json:"refreshToken"`
	Data              json.RawMessage `json:"data"`
}

func (r refreshResponse) pair() TokenPair {
	pair := TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if pair.AccessToken == "" {
		pair.AccessToken = r.AccessTokenCamel
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = r.RefreshTokenCamel
	}
	return pair
}

func (e *EndpointRefresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return TokenPair{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return TokenPair{}, fmt.Errorf("build refresh request: %w", err)
	}
	for k, v := range e.Header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return TokenPair{}, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return TokenPair{}, ClassifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenPair{}, Classify(resp.StatusCode, body)
	}

	return parseRefreshBody(body)
}

func parseRefreshBody(body []byte) (TokenPair, error) {
	var top refreshResponse
	if err := json.Unmarshal(body, &top); err != nil {
		return TokenPair{}, fmt.Errorf("decode refresh response: %w", err)
	}

	pair := top.pair()
	if pair.AccessToken == "" && len(top.Data) > 0 {
		var inner refreshResponse
		if err := json.Unmarshal(top.Data, &inner); err == nil {
			pair = inner.pair()
		}
	}
	if pair.AccessToken == "" {
		return TokenPair{}, ErrEmptyAccessToken
	}
	return pair, nil
}

// OAuth2Refresher performs the refresh_token grant against an OAuth2 token endpoint.
type OAuth2Refresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

// NewOAuth2Refresher creates a refresher for cfg.
func NewOAuth2Refresher(cfg *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{Config: cfg}
}

func (o *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if o.Config == nil {
		return TokenPair{}, errors.New("tautan: oauth2 config is nil")
	}
	if o.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}

	tok, err := o.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenPair{}, fmt.Errorf("oauth2 refresh: %w", err)
	}
	return TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}
