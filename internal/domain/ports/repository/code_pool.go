package repository

import (
	"context"
	"time"

	"license-activation/internal/domain/model"
)

// CodePoolRepository persists the allowed-code pool snapshot, its freshness
// marker and the set of administratively removed codes.
type CodePoolRepository interface {
	// Load returns domain.ErrNotFound when no snapshot was ever stored.
	// FetchedAt is zero when the freshness marker is missing.
	Load(ctx context.Context) (*model.CodePool, error)
	Save(ctx context.Context, pool *model.CodePool) error
	MarkFetched(ctx context.Context, at time.Time) error

	LoadRemoved(ctx context.Context) (*model.CodeSet, error)
	SaveRemoved(ctx context.Context, removed *model.CodeSet) error
}
