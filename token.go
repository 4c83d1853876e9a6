package tautan

import (
	"context"
	"sync"

	"github.com/ambiyansyah-risyal/tautan/tokenstore"
)

// TokenState holds the current credentials and mirrors them into a durable
// store. The in-memory copy is authoritative once set.
type TokenState struct {
	mu       sync.Mutex
	access   string
	refresh  string
	hydrated bool
	store    tokenstore.Store
}

// NewTokenState creates a state backed by store. A nil store keeps tokens in memory only.
func NewTokenState(store tokenstore.Store) *TokenState {
	if store == nil {
		store = tokenstore.NewMemory()
	}
	return &TokenState{store: store}
}

// hydrate loads the store once while memory is empty. Caller holds mu.
func (ts *TokenState) hydrate(ctx context.Context) error {
	if ts.hydrated || ts.access != "" || ts.refresh != "" {
		return nil
	}
	tokens, err := ts.store.Load(ctx)
	if err != nil {
		return err
	}
	ts.access = tokens.AccessToken
	ts.refresh = tokens.RefreshToken
	ts.hydrated = true
	return nil
}

// AccessToken returns the current access token, consulting the store when memory is empty.
func (ts *TokenState) AccessToken(ctx context.Context) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	_ = ts.hydrate(ctx)
	return ts.access
}

// RefreshToken returns the current refresh token.
func (ts *TokenState) RefreshToken(ctx context.Context) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	_ = ts.hydrate(ctx)
	return ts.refresh
}

// Pair returns both tokens.
func (ts *TokenState) Pair(ctx context.Context) (TokenPair, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if err := ts.hydrate(ctx); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: ts.access, RefreshToken: ts.refresh}, nil
}

// Set replaces both tokens and persists them.
func (ts *TokenState) Set(ctx context.Context, pair TokenPair) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.access = pair.AccessToken
	ts.refresh = pair.RefreshToken
	ts.hydrated = true
	return ts.store.Save(ctx, tokenstore.Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Clear removes both tokens from memory and the store.
func (ts *TokenState) Clear(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.access = ""
	ts.refresh = ""
	ts.hydrated = true
	return ts.store.Clear(ctx)
}

// Store returns the backing store.
func (ts *TokenState) Store() tokenstore.Store {
	return ts.store
}
