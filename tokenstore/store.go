// Package tokenstore persists the access/refresh token pair between
// process runs. Backends share one interface and are selected by Open.
package tokenstore

import (
	"context"
	"errors"
)

// Fixed persistence keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// ErrUnsupportedType is returned by Open for an unknown backend type.
var ErrUnsupportedType = errors.New("tokenstore: unsupported store type")

// Tokens is the persisted token pair. Empty fields are absent.
type Tokens struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// IsZero reports whether neither token is set.
func (t Tokens) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Store is a durable key-value home for the token pair.
type Store interface {
	// Load returns the stored tokens; a missing key yields an empty field.
	Load(ctx context.Context) (Tokens, error)

	// Save writes both keys. An empty field deletes that key.
	Save(ctx context.Context, tokens Tokens) error

	// Clear removes both keys.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// entries maps the pair to its persisted keys, in a stable order.
func (t Tokens) entries() [2][2]string {
	return [2][2]string{
		{KeyAccessToken, t.AccessToken},
		{KeyRefreshToken, t.RefreshToken},
	}
}

func (t *Tokens) set(key, value string) {
	switch key {
	case KeyAccessToken:
		t.AccessToken = value
	case KeyRefreshToken:
		t.RefreshToken = value
	}
}
