package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/infra/metrics"
	"license-activation/internal/usecase"
)

// PoolRefresher periodically pulls the published code list so activation
// requests rarely pay for the fetch.
type PoolRefresher struct {
	interval time.Duration
	timeout  time.Duration
	pools    usecase.CodePoolUseCase
	log      *zerolog.Logger
}

func NewPoolRefresher(interval, timeout time.Duration, pools usecase.CodePoolUseCase, logger *zerolog.Logger) *PoolRefresher {
	if interval <= 0 {
		interval = usecase.DefaultPoolCacheTTL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "PoolRefresher").Logger()
	return &PoolRefresher{interval: interval, timeout: timeout, pools: pools, log: &l}
}

// Run refreshes once immediately, then on every tick until ctx is done.
func (w *PoolRefresher) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting pool refresher")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping pool refresher")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *PoolRefresher) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	pool, err := w.pools.Refresh(runCtx)
	if err != nil {
		metrics.IncPoolRefresh("error")
		w.log.Error().Err(err).Msg("pool refresh failed")
		return
	}
	metrics.IncPoolRefresh("ok")
	w.log.Debug().Int("size", pool.Size()).Msg("pool refreshed")
}
