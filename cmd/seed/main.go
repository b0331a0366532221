// Command seed merges a local codes document into the allowed-code pool.
// The document has the same shape as the published list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"license-activation/internal/config"
	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/repository"
	"license-activation/internal/infra/adapters/codesource"
	boltstore "license-activation/internal/infra/db/bolt"
	"license-activation/internal/infra/db/kvstore"
	"license-activation/internal/infra/logging"
	red "license-activation/internal/infra/redis"
	"license-activation/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	file := flag.String("file", "codes.json", "codes document to import")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var kv repository.KV
	switch cfg.Store.Backend {
	case "redis":
		kv, err = red.NewClient(ctx, &cfg.Redis)
	case "bolt":
		kv, err = boltstore.Open(cfg.Bolt.Path)
	default:
		err = fmt.Errorf("store backend %q cannot be seeded", cfg.Store.Backend)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer kv.Close()

	poolUC := usecase.NewCodePoolUseCase(kvstore.NewCodePoolRepo(kv), codesource.NewFileSource(*file), usecase.PoolOptions{
		PersistRemovals: *cfg.Codes.PersistRemovals,
	}, logger)

	// Refresh merges the document into whatever is stored, honouring removals.
	pool, err := poolUC.Refresh(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("import codes")
	}
	for _, t := range model.Tiers {
		fmt.Printf("%s: %d codes\n", t, pool.Tier(t).Len())
	}
}
