package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

// executor is the subset of pgxpool.Pool the repo needs.
type executor interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type usageRepo struct {
	db executor
}

// NewUsageRepo stores usage records in Postgres. Rows are keyed by ULID so
// listing is chronological.
func NewUsageRepo(pool *pgxpool.Pool) repository.UsageRepository {
	return &usageRepo{db: pool}
}

func (r *usageRepo) Record(ctx context.Context, rec *model.UsageRecord) error {
	const q = `
INSERT INTO activation_usage (id, code, type, device_id, device_name, bundle_id, start_unix, duration_days, activated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO NOTHING;
`
	_, err := r.db.Exec(ctx, q,
		ulid.Make().String(), rec.Code, string(rec.Type), rec.DeviceID, rec.DeviceName, rec.BundleID,
		rec.Start, rec.DurationDays, rec.ActivatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert usage: %w", domain.ErrStoreFailure, err)
	}
	return nil
}

func (r *usageRepo) List(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error) {
	const q = `
SELECT id, code, type, device_id, device_name, bundle_id, start_unix, duration_days, activated_at
  FROM activation_usage
 WHERE id > $1
 ORDER BY id
 LIMIT $2;
`
	rows, err := r.db.Query(ctx, q, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("%w: list usage: %w", domain.ErrStoreFailure, err)
	}
	defer rows.Close()

	out := make([]*model.UsageRecord, 0, limit)
	var (
		lastID string
		seen   int
	)
	for rows.Next() {
		seen++
		var (
			id   string
			tier string
			rec  model.UsageRecord
		)
		if err := rows.Scan(&id, &rec.Code, &tier, &rec.DeviceID, &rec.DeviceName, &rec.BundleID,
			&rec.Start, &rec.DurationDays, &rec.ActivatedAt); err != nil {
			// best-effort listing: skip rows that fail to scan
			lastID = id
			continue
		}
		rec.Type = model.Tier(tier)
		lastID = id
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: list usage: %w", domain.ErrStoreFailure, err)
	}

	next := ""
	if limit > 0 && seen == limit {
		next = lastID
	}
	return out, next, nil
}
