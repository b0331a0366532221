package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*mirroredUsageRepo)(nil)

// mirroredUsageRepo writes every record to the primary log and, best-effort,
// to an audit mirror. Listing is served by the primary.
type mirroredUsageRepo struct {
	primary repository.UsageRepository
	mirror  repository.UsageRepository
	log     *zerolog.Logger
}

func NewMirroredUsageRepo(primary, mirror repository.UsageRepository, logger *zerolog.Logger) repository.UsageRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &mirroredUsageRepo{primary: primary, mirror: mirror, log: logger}
}

func (m *mirroredUsageRepo) Record(ctx context.Context, rec *model.UsageRecord) error {
	if err := m.primary.Record(ctx, rec); err != nil {
		return err
	}
	if err := m.mirror.Record(ctx, rec); err != nil {
		m.log.Warn().Err(err).Str("code", rec.Code).Msg("usage audit mirror write failed")
	}
	return nil
}

func (m *mirroredUsageRepo) List(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error) {
	return m.primary.List(ctx, limit, cursor)
}
