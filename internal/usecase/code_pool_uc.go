package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"license-activation/internal/domain"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/domain/ports/repository"
)

const (
	DefaultPoolCacheTTL     = 600 * time.Second
	DefaultPoolFetchTimeout = 30 * time.Second
	MinGenerateCount    = 1
	MaxGenerateCount    = 200

	// generation gives up after this many draws per requested code
	maxDrawsPerCode = 64
)

// CodePoolUseCase manages the allowed-code pool: a store-resident mirror of
// the published code list that administrators can edit locally.
type CodePoolUseCase interface {
	// GetAllowed returns the pool, refreshing it from the code source when
	// the stored copy is older than the freshness window.
	GetAllowed(ctx context.Context) (*model.CodePool, error)
	// Refresh fetches the code source regardless of freshness. A failed
	// fetch is an error even when a stored pool exists.
	Refresh(ctx context.Context) (*model.CodePool, error)

	AddCodes(ctx context.Context, tier model.Tier, codes []string) ([]string, error)
	RemoveCode(ctx context.Context, tier model.Tier, code string) error
	GenerateCodes(ctx context.Context, tier model.Tier, count int) ([]string, error)
	// Consume drops a code that was just bound. Unlike RemoveCode it does
	// not record a tombstone.
	Consume(ctx context.Context, tier model.Tier, code string) error
}

// PoolOptions tunes the pool use case. Zero values select defaults.
type PoolOptions struct {
	CacheTTL        time.Duration
	// FetchTimeout bounds one shared refresh. It is independent of the
	// callers' contexts, which may be cancelled while others still wait.
	FetchTimeout    time.Duration
	PersistRemovals bool
	Generator       CodeGenerator
	Now             func() time.Time
}

var _ CodePoolUseCase = (*codePoolUC)(nil)

type codePoolUC struct {
	repo   repository.CodePoolRepository
	source adapter.CodeSource
	gen    CodeGenerator
	opts   PoolOptions
	flight singleflight.Group
	log    *zerolog.Logger
}

func NewCodePoolUseCase(repo repository.CodePoolRepository, source adapter.CodeSource, opts PoolOptions, logger *zerolog.Logger) CodePoolUseCase {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultPoolCacheTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultPoolFetchTimeout
	}
	if opts.Generator == nil {
		opts.Generator = NewCodeGenerator(DefaultCodePrefix)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "CodePoolUC").Logger()
	return &codePoolUC{repo: repo, source: source, gen: opts.Generator, opts: opts, log: &l}
}

// ResolveType classifies code against pool, monthly before yearly.
func ResolveType(code string, pool *model.CodePool) (model.Tier, bool) {
	return pool.Resolve(code)
}

func (uc *codePoolUC) GetAllowed(ctx context.Context) (*model.CodePool, error) {
	cached, err := uc.load(ctx)
	if err != nil {
		return nil, err
	}
	now := uc.opts.Now()
	if cached != nil && !cached.FetchedAt.IsZero() && now.Sub(cached.FetchedAt) < uc.opts.CacheTTL {
		uc.log.Debug().Int("size", cached.Size()).Msg("allowed codes cache hit")
		return cached, nil
	}
	uc.log.Debug().Msg("allowed codes cache miss")
	pool, err := uc.refresh(ctx, cached)
	if errors.Is(err, domain.ErrPoolUnavailable) && cached != nil && ctx.Err() == nil {
		uc.log.Warn().Err(err).Msg("code source fetch failed; serving stale pool")
		return cached, nil
	}
	return pool, err
}

func (uc *codePoolUC) Refresh(ctx context.Context) (*model.CodePool, error) {
	cached, err := uc.load(ctx)
	if err != nil {
		return nil, err
	}
	return uc.refresh(ctx, cached)
}

// refresh merges the remote snapshot into cached. Concurrent refreshes in
// this process share one fetch, which runs detached from any single
// caller's cancellation; each caller still stops waiting when its own ctx
// ends, and gets its own copy of the result.
func (uc *codePoolUC) refresh(ctx context.Context, cached *model.CodePool) (*model.CodePool, error) {
	ch := uc.flight.DoChan("allowed-codes", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.FetchTimeout)
		defer cancel()
		return uc.fetchAndMerge(fctx, cached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.CodePool).Clone(), nil
	}
}

func (uc *codePoolUC) fetchAndMerge(ctx context.Context, cached *model.CodePool) (*model.CodePool, error) {
	remote, err := uc.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPoolUnavailable, err)
	}

	merged := cached
	if merged == nil {
		merged = model.NewCodePool()
	} else {
		merged = merged.Clone()
	}
	var removed *model.CodeSet
	if uc.opts.PersistRemovals {
		if removed, err = uc.repo.LoadRemoved(ctx); err != nil {
			return nil, err
		}
	}
	merged.Merge(remote, removed)

	now := uc.opts.Now()
	if err := uc.repo.Save(ctx, merged); err != nil {
		return nil, err
	}
	if err := uc.repo.MarkFetched(ctx, now); err != nil {
		return nil, err
	}
	merged.FetchedAt = now
	uc.log.Info().
		Int("monthly", merged.Tier(model.TierMonthly).Len()).
		Int("yearly", merged.Tier(model.TierYearly).Len()).
		Msg("allowed codes refreshed")
	return merged, nil
}

func (uc *codePoolUC) AddCodes(ctx context.Context, tier model.Tier, codes []string) ([]string, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	pool, err := uc.loadForEdit(ctx)
	if err != nil {
		return nil, err
	}
	set := pool.Tier(tier)
	if set == nil {
		return nil, domain.ErrUnknownTier
	}
	added := set.Add(codes...)
	if len(added) > 0 {
		if err := uc.repo.Save(ctx, pool); err != nil {
			return nil, err
		}
	}
	if err := uc.forgetRemoved(ctx, codes); err != nil {
		return nil, err
	}
	return added, nil
}

func (uc *codePoolUC) RemoveCode(ctx context.Context, tier model.Tier, code string) error {
	if err := uc.drop(ctx, tier, code); err != nil {
		return err
	}
	if !uc.opts.PersistRemovals {
		return nil
	}
	removed, err := uc.repo.LoadRemoved(ctx)
	if err != nil {
		return err
	}
	if len(removed.Add(strings.TrimSpace(code))) == 0 {
		return nil
	}
	return uc.repo.SaveRemoved(ctx, removed)
}

func (uc *codePoolUC) Consume(ctx context.Context, tier model.Tier, code string) error {
	return uc.drop(ctx, tier, code)
}

func (uc *codePoolUC) drop(ctx context.Context, tier model.Tier, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.ErrInvalidArgument
	}
	pool, err := uc.load(ctx)
	if err != nil {
		return err
	}
	if pool == nil {
		return nil
	}
	set := pool.Tier(tier)
	if set == nil {
		return domain.ErrUnknownTier
	}
	if !set.Remove(code) {
		return nil
	}
	return uc.repo.Save(ctx, pool)
}

func (uc *codePoolUC) GenerateCodes(ctx context.Context, tier model.Tier, count int) ([]string, error) {
	count = clampGenerateCount(count)
	pool, err := uc.loadForEdit(ctx)
	if err != nil {
		return nil, err
	}
	set := pool.Tier(tier)
	if set == nil {
		return nil, domain.ErrUnknownTier
	}

	batch := model.NewCodeSet()
	for draws := 0; batch.Len() < count; draws++ {
		if draws >= count*maxDrawsPerCode {
			return nil, fmt.Errorf("generate codes: gave up after %d draws", draws)
		}
		code, err := uc.gen.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate codes: %w", err)
		}
		if pool.Contains(code) || batch.Has(code) {
			continue
		}
		batch.Add(code)
	}

	out := batch.Codes()
	set.Add(out...)
	if err := uc.repo.Save(ctx, pool); err != nil {
		return nil, err
	}
	if err := uc.forgetRemoved(ctx, out); err != nil {
		return nil, err
	}
	uc.log.Info().Str("type", tier.String()).Int("count", len(out)).Msg("codes generated")
	return out, nil
}

// load returns the stored pool, or nil when none exists yet.
func (uc *codePoolUC) load(ctx context.Context) (*model.CodePool, error) {
	pool, err := uc.repo.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return pool, err
}

// loadForEdit prefers a fresh pool so collision checks and merges see the
// published list, but admin edits still work while the source is down.
func (uc *codePoolUC) loadForEdit(ctx context.Context) (*model.CodePool, error) {
	pool, err := uc.GetAllowed(ctx)
	if errors.Is(err, domain.ErrPoolUnavailable) {
		uc.log.Warn().Err(err).Msg("editing pool without a published snapshot")
		return model.NewCodePool(), nil
	}
	return pool, err
}

func (uc *codePoolUC) forgetRemoved(ctx context.Context, codes []string) error {
	if !uc.opts.PersistRemovals {
		return nil
	}
	removed, err := uc.repo.LoadRemoved(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, c := range codes {
		if removed.Remove(c) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return uc.repo.SaveRemoved(ctx, removed)
}

func clampGenerateCount(n int) int {
	if n < MinGenerateCount {
		return MinGenerateCount
	}
	if n > MaxGenerateCount {
		return MaxGenerateCount
	}
	return n
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
