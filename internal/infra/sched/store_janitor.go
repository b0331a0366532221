package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/infra/metrics"
)

// Sweeper purges expired entries from a store that does not expire them on
// its own.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// StoreJanitor runs a Sweeper on a fixed interval.
type StoreJanitor struct {
	interval time.Duration
	store    Sweeper
	log      *zerolog.Logger
}

func NewStoreJanitor(interval time.Duration, store Sweeper, logger *zerolog.Logger) *StoreJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "StoreJanitor").Logger()
	return &StoreJanitor{interval: interval, store: store, log: &l}
}

func (j *StoreJanitor) Run(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Msg("Starting store janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping store janitor")
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *StoreJanitor) RunOnce(ctx context.Context) {
	n, err := j.store.Sweep(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("store sweep failed")
		return
	}
	if n > 0 {
		metrics.AddStoreSwept(n)
		j.log.Info().Int("count", n).Msg("expired entries swept")
	}
}
