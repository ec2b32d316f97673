package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV stores records as JSONB rows keyed by (namespace, key).
type PostgresKV struct {
	db *pgxpool.Pool
}

// NewPostgresKV connects to Postgres and ensures the backing table exists.
func NewPostgresKV(ctx context.Context, databaseURL string) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	_, err = pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS memory_records (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure memory_records table: %w", err)
	}

	return &PostgresKV{db: pool}, nil
}

func (s *PostgresKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM memory_records WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *PostgresKV) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_records (namespace, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = NOW()`,
		namespace, key, value,
	)
	return err
}

func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM memory_records WHERE namespace = $1 AND key = $2`,
		namespace, key,
	)
	return err
}

func (s *PostgresKV) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresKV) Close() error {
	s.db.Close()
	return nil
}
