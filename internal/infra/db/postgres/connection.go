package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// NewPgxPool parses dsn, caps the pool size and verifies connectivity.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const usageSchema = `
CREATE TABLE IF NOT EXISTS activation_usage (
    id            TEXT PRIMARY KEY,
    code          TEXT NOT NULL UNIQUE,
    type          TEXT NOT NULL,
    device_id     TEXT NOT NULL,
    device_name   TEXT NOT NULL DEFAULT '',
    bundle_id     TEXT NOT NULL DEFAULT '',
    start_unix    BIGINT NOT NULL,
    duration_days INTEGER NOT NULL,
    activated_at  TEXT NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS activation_usage_device_idx ON activation_usage (device_id);
`

// EnsureSchema creates the usage audit table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, usageSchema)
	return err
}
