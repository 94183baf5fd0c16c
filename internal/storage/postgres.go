package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS kv_store (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// PostgresStore persists keys in the kv_store table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	quota int
}

// NewPostgresStore connects to databaseURL and ensures the table exists.
func NewPostgresStore(ctx context.Context, databaseURL string, quota int) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createKVTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}
	return &PostgresStore{pool: pool, quota: quota}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

// Set upserts key. The quota check and the write share one transaction so a
// concurrent writer cannot slip past the limit.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.quota > 0 {
		if _, err := tx.Exec(ctx, `LOCK TABLE kv_store IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return &Error{Op: "set", Key: key, Err: err}
		}
		var used int
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0) FROM kv_store WHERE key <> $1`,
			key,
		).Scan(&used)
		if err != nil {
			return &Error{Op: "set", Key: key, Err: err}
		}
		if used+len(key)+len(value) > s.quota {
			return &Error{Op: "set", Key: key, Err: ErrQuotaExceeded}
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO kv_store (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}
