package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout bounds the initial Valkey ping.
const DefaultConnectTimeout = 5 * time.Second

// ValkeyConfig holds the connection settings for the Valkey store.
type ValkeyConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Valkey stores tokens under prefixed keys so several hosts can share a session.
type Valkey struct {
	client valkeylib.Client
	prefix string
}

// NewValkey connects and pings the server within the connect timeout.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required for Valkey token store")
	}

	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return &Valkey{client: client, prefix: keyPrefix(cfg.KeyPrefix)}, nil
}

func keyPrefix(prefix string) string {
	if prefix == "" {
		prefix = "tautan"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (v *Valkey) key(name string) string {
	return v.prefix + name
}

func (v *Valkey) Load(ctx context.Context) (Tokens, error) {
	var tokens Tokens
	for _, name := range []string{KeyAccessToken, KeyRefreshToken} {
		value, err := v.client.Do(ctx, v.client.B().Get().Key(v.key(name)).Build()).ToString()
		if valkeylib.IsValkeyNil(err) {
			continue
		}
		if err != nil {
			return Tokens{}, fmt.Errorf("failed to load %s: %w", name, err)
		}
		tokens.set(name, value)
	}
	return tokens, nil
}

func (v *Valkey) Save(ctx context.Context, tokens Tokens) error {
	for _, kv := range tokens.entries() {
		var cmd valkeylib.Completed
		if kv[1] == "" {
			cmd = v.client.B().Del().Key(v.key(kv[0])).Build()
		} else {
			cmd = v.client.B().Set().Key(v.key(kv[0])).Value(kv[1]).Build()
		}
		if err := v.client.Do(ctx, cmd).Error(); err != nil {
			return fmt.Errorf("failed to save %s: %w", kv[0], err)
		}
	}
	return nil
}

func (v *Valkey) Clear(ctx context.Context) error {
	cmd := v.client.B().Del().Key(v.key(KeyAccessToken), v.key(KeyRefreshToken)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
