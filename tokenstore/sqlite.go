package tokenstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS tautan_tokens (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLite stores tokens in a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at dsn.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite token store")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context) (Tokens, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM tautan_tokens`)
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

func (s *SQLite) Save(ctx context.Context, tokens Tokens) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kv := range tokens.entries() {
		if kv[1] == "" {
			_, err = tx.ExecContext(ctx, `DELETE FROM tautan_tokens WHERE key = ?`, kv[0])
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO tautan_tokens (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, kv[0], kv[1])
		}
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tokens: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tautan_tokens`); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
