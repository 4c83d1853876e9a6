// Package config loads tautan client settings from an optional YAML file and
// TAUTAN_-prefixed environment variables, then validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/ambiyansyah-risyal/tautan"
	"github.com/ambiyansyah-risyal/tautan/tokenstore"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TAUTAN_"

func init() {
	// Report validation errors under the YAML key names.
	validation.ErrorTag = "yaml"
}

// Config is the full client configuration.
type Config struct {
	BaseURL        string               `yaml:"base_url" env:"BASE_URL"`
	Timeout        time.Duration        `yaml:"timeout" env:"TIMEOUT"`
	DevMode        bool                 `yaml:"dev_mode" env:"DEV_MODE"`
	RefreshURL     string               `yaml:"refresh_url" env:"REFRESH_URL"`
	Deduplicate    bool                 `yaml:"deduplicate" env:"DEDUPLICATE"`
	Metrics        bool                 `yaml:"metrics" env:"METRICS"`
	Retry          RetryConfig          `yaml:"retry" envPrefix:"RETRY_"`
	Cache          CacheConfig          `yaml:"cache" envPrefix:"CACHE_"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" envPrefix:"CIRCUIT_BREAKER_"`
	OAuth2         OAuth2Config         `yaml:"oauth2" envPrefix:"OAUTH2_"`
	TokenStore     tokenstore.Config    `yaml:"token_store" envPrefix:"TOKEN_STORE_"`
	Logging        LoggingConfig        `yaml:"logging" envPrefix:"LOG_"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit" env:"LIMIT"`
	Window time.Duration `yaml:"window" env:"WINDOW"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
}

// OAuth2Config switches token refresh to the OAuth2 refresh_token grant when TokenURL is set.
type OAuth2Config struct {
	TokenURL     string `yaml:"token_url" env:"TOKEN_URL"`
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Format   string `yaml:"format" env:"FORMAT"`
	Output   string `yaml:"output" env:"OUTPUT"`
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	Debug    bool   `yaml:"debug" env:"DEBUG"`
}

// Default returns the configuration matching tautan.New's defaults.
func Default() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 100,
		},
		RateLimit: RateLimitConfig{
			Limit:  100,
			Window: time.Minute,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		TokenStore: tokenstore.Config{Type: tokenstore.TypeMemory},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", filePath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// Validate checks ranges and enumerations. Zero durations are left to the
// client's own construction checks.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.RequestURL, validation.By(httpScheme)),
		validation.Field(&c.Timeout, validation.Min(time.Millisecond), validation.Max(10*time.Minute)),
		validation.Field(&c.RefreshURL, validation.By(refreshURL)),
		validation.Field(&c.Retry),
		validation.Field(&c.Cache),
		validation.Field(&c.RateLimit),
		validation.Field(&c.CircuitBreaker),
		validation.Field(&c.OAuth2),
		validation.Field(&c.TokenStore, validation.By(tokenStoreConfig)),
		validation.Field(&c.Logging),
	)
}

func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0), validation.Max(100)),
		validation.Field(&r.BaseDelay, validation.Min(time.Millisecond)),
		validation.Field(&r.MaxDelay, validation.Min(r.BaseDelay), validation.Max(time.Hour)),
	)
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Min(time.Second), validation.Max(24*time.Hour)),
		validation.Field(&c.MaxEntries, validation.Min(0)),
	)
}

func (r RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Min(1)),
		validation.Field(&r.Window, validation.Min(time.Millisecond)),
	)
}

func (c CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Min(1)),
		validation.Field(&c.RecoveryTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.SuccessThreshold, validation.Min(1)),
	)
}

func (o OAuth2Config) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.TokenURL, is.RequestURL),
		validation.Field(&o.ClientID, validation.When(o.TokenURL != "", validation.Required)),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("console", "json")),
		validation.Field(&l.Output, validation.In("stdout", "stderr", "file")),
		validation.Field(&l.FilePath, validation.When(l.Output == "file", validation.Required)),
	)
}

func httpScheme(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func refreshURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := url.Parse(s); err != nil {
		return errors.New("must be a valid URL or path")
	}
	return nil
}

func tokenStoreConfig(value interface{}) error {
	cfg, ok := value.(tokenstore.Config)
	if !ok {
		return nil
	}

	switch cfg.Type {
	case "", tokenstore.TypeMemory:
		return nil
	case tokenstore.TypeFile:
		if cfg.Path == "" {
			return errors.New("path is required for the file store")
		}
	case tokenstore.TypeSQLite:
		if cfg.DSN == "" && cfg.Path == "" {
			return errors.New("dsn or path is required for the sqlite store")
		}
	case tokenstore.TypePostgres:
		if cfg.DSN == "" {
			return errors.New("dsn is required for the postgres store")
		}
	case tokenstore.TypeValkey:
		if cfg.Address == "" {
			return errors.New("address is required for the valkey store")
		}
	default:
		return fmt.Errorf("unsupported type %q", cfg.Type)
	}
	return nil
}

// ClientOptions converts the configuration into client options. The token
// store is opened separately because it needs a context and may fail.
func (c *Config) ClientOptions() []tautan.Option {
	opts := []tautan.Option{
		tautan.WithBaseURL(c.BaseURL),
		tautan.WithTimeout(c.Timeout),
		tautan.WithMaxRetries(c.Retry.MaxRetries),
		tautan.WithRetryBaseDelay(c.Retry.BaseDelay),
		tautan.WithMaxRetryDelay(c.Retry.MaxDelay),
		tautan.WithCache(c.Cache.TTL, c.Cache.MaxEntries),
		tautan.WithRateLimit(c.RateLimit.Limit, c.RateLimit.Window),
		tautan.WithDevMode(c.DevMode),
	}

	if c.RefreshURL != "" {
		opts = append(opts, tautan.WithRefreshURL(c.RefreshURL))
	}
	if c.OAuth2.TokenURL != "" {
		opts = append(opts, tautan.WithRefresher(tautan.NewOAuth2Refresher(&oauth2.Config{
			ClientID:     c.OAuth2.ClientID,
			ClientSecret: c.OAuth2.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: c.OAuth2.TokenURL},
		})))
	}
	if c.CircuitBreaker.Enabled {
		opts = append(opts, tautan.WithCircuitBreaker(tautan.CircuitBreakerConfig{
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  c.CircuitBreaker.RecoveryTimeout,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
		}))
	}
	if c.Deduplicate {
		opts = append(opts, tautan.WithDeduplication())
	}
	if c.Metrics {
		opts = append(opts, tautan.WithMetrics())
	}

	return opts
}
