package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
)

const (
	DefaultUsagePageSize = 100
	MaxUsagePageSize     = 1000
)

// CodesOverview is what the admin surface lists: the current pool and a page
// of the usage log.
type CodesOverview struct {
	Monthly     []string             `json:"monthly"`
	Yearly      []string             `json:"yearly"`
	FetchedAt   time.Time            `json:"fetchedAt"`
	Usage       []*model.UsageRecord `json:"usage"`
	UsageCursor string               `json:"usageCursor,omitempty"`
}

// AdminUseCase is the administrative surface over the pool and usage log.
type AdminUseCase interface {
	Overview(ctx context.Context, limit int, cursor string) (*CodesOverview, error)
	ListUsage(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error)
	AddCodes(ctx context.Context, tier model.Tier, codes []string) ([]string, error)
	RemoveCode(ctx context.Context, tier model.Tier, code string) error
	GenerateCodes(ctx context.Context, tier model.Tier, count int) ([]string, error)
}

var _ AdminUseCase = (*adminUC)(nil)

type adminUC struct {
	pools CodePoolUseCase
	usage repository.UsageRepository
	log   *zerolog.Logger
}

func NewAdminUseCase(pools CodePoolUseCase, usage repository.UsageRepository, logger *zerolog.Logger) AdminUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "AdminUC").Logger()
	return &adminUC{pools: pools, usage: usage, log: &l}
}

func (a *adminUC) Overview(ctx context.Context, limit int, cursor string) (*CodesOverview, error) {
	pool, err := a.pools.GetAllowed(ctx)
	if err != nil {
		return nil, err
	}
	usage, next, err := a.ListUsage(ctx, limit, cursor)
	if err != nil {
		return nil, err
	}
	return &CodesOverview{
		Monthly:     pool.Tier(model.TierMonthly).Sorted(),
		Yearly:      pool.Tier(model.TierYearly).Sorted(),
		FetchedAt:   pool.FetchedAt,
		Usage:       usage,
		UsageCursor: next,
	}, nil
}

func (a *adminUC) ListUsage(ctx context.Context, limit int, cursor string) ([]*model.UsageRecord, string, error) {
	if limit <= 0 {
		limit = DefaultUsagePageSize
	}
	if limit > MaxUsagePageSize {
		limit = MaxUsagePageSize
	}
	return a.usage.List(ctx, limit, cursor)
}

func (a *adminUC) AddCodes(ctx context.Context, tier model.Tier, codes []string) ([]string, error) {
	added, err := a.pools.AddCodes(ctx, tier, codes)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("type", tier.String()).Int("requested", len(codes)).Int("added", len(added)).Msg("codes added")
	return added, nil
}

func (a *adminUC) RemoveCode(ctx context.Context, tier model.Tier, code string) error {
	if err := a.pools.RemoveCode(ctx, tier, code); err != nil {
		return err
	}
	a.log.Info().Str("type", tier.String()).Str("code", code).Msg("code removed")
	return nil
}

func (a *adminUC) GenerateCodes(ctx context.Context, tier model.Tier, count int) ([]string, error) {
	return a.pools.GenerateCodes(ctx, tier, count)
}
