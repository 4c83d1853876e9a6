package tokenstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS tautan_tokens (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Postgres stores tokens in a PostgreSQL table shared by every process
// pointing at the same database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and ensures the token table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL token store")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create token table: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context) (Tokens, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM tautan_tokens`)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens Tokens
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Tokens{}, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens.set(key, value)
	}
	if err := rows.Err(); err != nil {
		return Tokens{}, fmt.Errorf("failed to iterate token rows: %w", err)
	}
	return tokens, nil
}

func (p *Postgres) Save(ctx context.Context, tokens Tokens) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, kv := range tokens.entries() {
			var err error
			if kv[1] == "" {
				_, err = tx.Exec(ctx, `DELETE FROM tautan_tokens WHERE key = $1`, kv[0])
			} else {
				_, err = tx.Exec(ctx,
					`INSERT INTO tautan_tokens (key, value) VALUES ($1, $2)
					 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, kv[0], kv[1])
			}
			if err != nil {
				return fmt.Errorf("failed to save %s: %w", kv[0], err)
			}
		}
		return nil
	})
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM tautan_tokens`); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
