package tokenstore

import (
	"context"
	"fmt"
)

// Supported store types.
const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeValkey   = "valkey"
)

// Config selects and configures a backend.
type Config struct {
	Type      string `yaml:"type" env:"TYPE"`
	Path      string `yaml:"path,omitempty" env:"PATH"`
	DSN       string `yaml:"dsn,omitempty" env:"DSN"`
	Address   string `yaml:"address,omitempty" env:"ADDRESS"`
	Password  string `yaml:"password,omitempty" env:"PASSWORD"`
	DB        int    `yaml:"db,omitempty" env:"DB"`
	KeyPrefix string `yaml:"key_prefix,omitempty" env:"KEY_PREFIX"`
}

// Open instantiates the backend named by cfg.Type. An empty type selects memory.
//   - memory: process-local, lost on exit
//   - file: JSON file at Path
//   - sqlite: SQLite database at DSN (or Path)
//   - postgres: PostgreSQL database at DSN
//   - valkey: Valkey server at Address
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemory(), nil
	case TypeFile:
		return NewFile(cfg.Path)
	case TypeSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return NewSQLite(ctx, dsn)
	case TypePostgres:
		return NewPostgres(ctx, cfg.DSN)
	case TypeValkey:
		return NewValkey(ValkeyConfig{
			Address:   cfg.Address,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// SupportedTypes lists the accepted Config.Type values.
func SupportedTypes() []string {
	return []string{TypeMemory, TypeFile, TypeSQLite, TypePostgres, TypeValkey}
}
