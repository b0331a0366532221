// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/config"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/domain/ports/repository"
	"license-activation/internal/infra/adapters/codesource"
	tele "license-activation/internal/infra/adapters/telegram"
	"license-activation/internal/infra/api"
	boltstore "license-activation/internal/infra/db/bolt"
	"license-activation/internal/infra/db/kvstore"
	pg "license-activation/internal/infra/db/postgres"
	"license-activation/internal/infra/kv/memory"
	"license-activation/internal/infra/logging"
	"license-activation/internal/infra/metrics"
	red "license-activation/internal/infra/redis"
	"license-activation/internal/infra/sched"
	"license-activation/internal/infra/web"
	"license-activation/internal/infra/worker"
	"license-activation/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// store bundles the selected KV backend with its optional capabilities.
type store struct {
	kv      repository.KV
	counter repository.Counter
	sweeper sched.Sweeper
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted ids)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Store ----
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("store")
	}
	defer st.kv.Close()

	// ---- Repositories ----
	ledgerRepo := kvstore.NewActivationRepo(st.kv, cfg.Store.RecordTTL)
	poolRepo := kvstore.NewCodePoolRepo(st.kv)
	usageRepo := kvstore.NewUsageRepo(st.kv, cfg.Store.RecordTTL, logger)

	// ---- Postgres usage mirror (optional) ----
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres schema")
		}
		usageRepo = pg.NewMirroredUsageRepo(usageRepo, pg.NewUsageRepo(pool), logger)
		logger.Info().Msg("usage log mirrored to postgres")
	}

	// ---- Code source ----
	source, err := codesource.NewHTTPSource(cfg.Codes.SourceURL, cfg.Codes.FetchTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("code source")
	}

	// ---- Use cases ----
	poolUC := usecase.NewCodePoolUseCase(poolRepo, source, usecase.PoolOptions{
		CacheTTL:        cfg.Codes.CacheTTL,
		FetchTimeout:    cfg.Codes.FetchTimeout,
		PersistRemovals: *cfg.Codes.PersistRemovals,
		Generator:       usecase.NewCodeGenerator(cfg.Codes.Prefix),
	}, logger)
	adminUC := usecase.NewAdminUseCase(poolUC, usageRepo, logger)

	opts := usecase.ActivationOptions{
		Durations: model.Durations{
			model.TierMonthly: cfg.Codes.MonthlyDays,
			model.TierYearly:  cfg.Codes.YearlyDays,
		},
		PruneLegacyDeviceKey: cfg.Ledger.PruneLegacyDeviceKey,
	}
	if n := cfg.RateLimit.ActivatePerMinute; n > 0 {
		opts.Limiter = red.NewRateLimiter(st.counter, "activate", n, time.Minute)
	}

	// ---- Telegram ----
	notifyPool := worker.NewPool(cfg.Bot.Workers, logger)
	notifyPool.Start(ctx)
	defer notifyPool.Stop()

	var botAdapter adapter.TelegramBotAdapter = tele.NewNoopBotAdapter(logger)
	if cfg.Bot.Token != "" {
		bot, err := tele.NewAdminBot(cfg.Bot.Token, cfg.Bot.AdminIDs, adminUC, cfg.Bot.Workers, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		botAdapter = bot
		go func() {
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}
	if len(cfg.Bot.AdminIDs) > 0 {
		opts.Notifier = tele.NewNotifier(botAdapter, cfg.Bot.AdminIDs, notifyPool, cfg.Runtime.Dev, logger)
	}
	activationUC := usecase.NewActivationUseCase(ledgerRepo, poolUC, usageRepo, opts, logger)

	// ---- HTTP ----
	routerOpts := api.Options{RequestTimeout: cfg.HTTP.RequestTimeout, Metrics: metrics.Handler()}
	if cfg.AdminEnabled() {
		auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.CookieDomain, cfg.Admin.SessionTTL)
		creds := web.Credentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash}
		routerOpts.Admin = web.NewServer(adminUC, auth, creds, logger).Routes()
	} else {
		logger.Info().Msg("admin API disabled: admin.password_hash not set")
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.NewServer(activationUC, logger).Router(routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Workers ----
	if cfg.Codes.RefreshInterval > 0 {
		refresher := sched.NewPoolRefresher(cfg.Codes.RefreshInterval, cfg.Codes.FetchTimeout, poolUC, logger)
		go func() { _ = refresher.Run(ctx) }()
	}
	if st.sweeper != nil {
		janitor := sched.NewStoreJanitor(time.Hour, st.sweeper, logger)
		go func() { _ = janitor.Run(ctx) }()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	cancel()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*store, error) {
	switch cfg.Store.Backend {
	case "redis":
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &store{kv: c, counter: c}, nil
	case "bolt":
		b, err := boltstore.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Bolt.Path).Msg("using embedded store")
		return &store{kv: b, counter: b, sweeper: b}, nil
	case "memory":
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		m := memory.New()
		return &store{kv: m, counter: m}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
