package tautan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newLoggedInState(t *testing.T, pair TokenPair) *TokenState {
	t.Helper()

	state := NewTokenState(nil)
	if err := state.Set(context.Background(), pair); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return state
}

func TestRefreshCoordinatorSharesOneExchange(t *testing.T) {
	state := newLoggedInState(t, TokenPair{AccessToken: "old", RefreshToken: "r1"})
	bus := NewEventBus()
	events, cancel := bus.Subscribe(8)
	defer cancel()

	release := make(chan struct{})
	refresher := RefresherFunc(func(ctx context.Context, rt string) (TokenPair, error) {
		<-release
		return TokenPair{AccessToken: "new", RefreshToken: "r2"}, nil
	})
	rc := NewRefreshCoordinator(state, refresher, bus, time.Second)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := rc.Refresh(context.Background())
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			results <- token
		}()
	}

	deadline := time.Now().Add(time.Second)
	for !rc.InFlight() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !rc.InFlight() {
		t.Fatal("Expected a refresh to be in flight")
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for token := range results {
		if token != "new" {
			t.Errorf("Expected every caller to get the new token, got %q", token)
		}
	}
	if rc.Calls() != 1 {
		t.Errorf("Expected 1 exchange, got %d", rc.Calls())
	}
	if rc.InFlight() {
		t.Error("Expected no refresh in flight after completion")
	}
	if ev, ok := nextEvent(t, events).(TokenRefreshed); !ok || ev.AccessToken != "new" {
		t.Errorf("Expected TokenRefreshed, got %#v", ev)
	}
	if len(events) != 0 {
		t.Errorf("Expected a single refresh event, got %d more", len(events))
	}
}

func TestRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	state := newLoggedInState(t, TokenPair{AccessToken: "old", RefreshToken: "r1"})
	rc := NewRefreshCoordinator(state, RefresherFunc(func(ctx context.Context, rt string) (TokenPair, error) {
		return TokenPair{AccessToken: "new"}, nil
	}), NewEventBus(), 0)

	if _, err := rc.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	pair, _ := state.Pair(context.Background())
	if pair.AccessToken != "new" || pair.RefreshToken != "r1" {
		t.Errorf("Expected new access token with old refresh token, got %+v", pair)
	}
}

func TestRefreshFailureClearsTokens(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		pair      TokenPair
		refresher Refresher
		want      error
	}{
		{
			name:      "refresher error",
			pair:      TokenPair{AccessToken: "a", RefreshToken: "r"},
			refresher: RefresherFunc(func(context.Context, string) (TokenPair, error) { return TokenPair{}, boom }),
			want:      boom,
		},
		{
			name:      "empty access token",
			pair:      TokenPair{AccessToken: "a", RefreshToken: "r"},
			refresher: RefresherFunc(func(context.Context, string) (TokenPair, error) { return TokenPair{RefreshToken: "x"}, nil }),
			want:      ErrEmptyAccessToken,
		},
		{
			name: "no refresh token",
			pair: TokenPair{AccessToken: "a"},
			want: ErrNoRefreshToken,
		},
		{
			name: "no refresher",
			pair: TokenPair{AccessToken: "a", RefreshToken: "r"},
			want: ErrNoRefresher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newLoggedInState(t, tt.pair)
			rc := NewRefreshCoordinator(state, tt.refresher, NewEventBus(), time.Second)

			_, err := rc.Refresh(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if state.AccessToken(context.Background()) != "" {
				t.Error("Expected tokens to be cleared")
			}
		})
	}
}

func TestRefreshWaiterCancellationDoesNotAbortExchange(t *testing.T) {
	state := newLoggedInState(t, TokenPair{AccessToken: "old", RefreshToken: "r1"})
	release := make(chan struct{})
	done := make(chan struct{})
	rc := NewRefreshCoordinator(state, RefresherFunc(func(ctx context.Context, rt string) (TokenPair, error) {
		defer close(done)
		<-release
		if ctx.Err() != nil {
			return TokenPair{}, ctx.Err()
		}
		return TokenPair{AccessToken: "new"}, nil
	}), NewEventBus(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := rc.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	close(release)
	<-done
	deadline := time.Now().Add(time.Second)
	for state.AccessToken(context.Background()) != "new" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if state.AccessToken(context.Background()) != "new" {
		t.Error("Expected exchange to complete after the waiter gave up")
	}
}

func TestEndpointRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent() {
			t.Errorf("Expected User-Agent %q, got %q", UserAgent(), r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/snake":
			_, _ = w.Write([]byte(`{"access_token":"a1","refresh_token":"r1"}`))
		case "/wrapped":
			if r.Header.Get("X-Client") != "app" {
				t.Errorf("Expected extra header, got %q", r.Header.Get("X-Client"))
			}
			_, _ = w.Write([]byte(`{"success":true,"data":{"accessToken":"a2","refreshToken":"r2"}}`))
		case "/expired":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Refresh token expired","code":"TOKEN_EXPIRED"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`<html>`))
		case "/empty":
			_, _ = w.Write([]byte(`{"data":{}}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	pair, err := NewEndpointRefresher(srv.URL+"/snake", srv.Client()).Refresh(ctx, "r0")
	if err != nil || pair.AccessToken != "a1" || pair.RefreshToken != "r1" {
		t.Errorf("Expected snake_case pair, got %+v %v", pair, err)
	}

	wrapped := NewEndpointRefresher(srv.URL+"/wrapped", srv.Client())
	wrapped.Header = http.Header{"X-Client": []string{"app"}}
	pair, err = wrapped.Refresh(ctx, "r0")
	if err != nil || pair.AccessToken != "a2" || pair.RefreshToken != "r2" {
		t.Errorf("Expected wrapped camelCase pair, got %+v %v", pair, err)
	}

	_, err = NewEndpointRefresher(srv.URL+"/expired", srv.Client()).Refresh(ctx, "r0")
	apiErr := asAPIError(t, err)
	if apiErr.Kind != KindAuthentication || apiErr.Code != "TOKEN_EXPIRED" {
		t.Errorf("Expected AUTHENTICATION/TOKEN_EXPIRED, got %s/%s", apiErr.Kind, apiErr.Code)
	}

	if _, err := NewEndpointRefresher(srv.URL+"/garbage", srv.Client()).Refresh(ctx, "r0"); err == nil {
		t.Error("Expected decode error")
	}
	if _, err := NewEndpointRefresher(srv.URL+"/empty", srv.Client()).Refresh(ctx, "r0"); !errors.Is(err, ErrEmptyAccessToken) {
		t.Errorf("Expected ErrEmptyAccessToken, got %v", err)
	}
}

func TestOAuth2Refresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Unexpected form error: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r1" {
			t.Errorf("Expected refresh_token grant for r1, got %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"oa","token_type":"bearer","refresh_token":"r2","expires_in":3600}`))
	}))
	defer srv.Close()

	refresher := NewOAuth2Refresher(&oauth2.Config{
		ClientID:     "tautan",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInHeader},
	})
	refresher.HTTPClient = srv.Client()

	pair, err := refresher.Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pair.AccessToken != "oa" || pair.RefreshToken != "r2" {
		t.Errorf("Expected oauth2 pair, got %+v", pair)
	}

	if _, err := (&OAuth2Refresher{}).Refresh(context.Background(), "r1"); err == nil {
		t.Error("Expected error for missing config")
	}
}
