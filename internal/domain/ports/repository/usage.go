package repository

import (
	"context"

	"license-activation/internal/domain/model"
)

// UsageRepository is the append-only audit log of successful activations.
type UsageRepository interface {
	// Record stores rec once; a second record for the same code is ignored.
	Record(ctx context.Context, rec *model.UsageRecord) error
	// List returns up to limit records starting after cursor. Unreadable
	// entries are skipped.
	List(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error)
}
