package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/generation"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/ledger"
	"studio/internal/providers/aggregator"
)

// sweep runs one recovery pass against the database and exits. Jobs that are
// still within their lifetime are polled once instead of adopted.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "sweep").Logger()
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("sweep needs the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	key, err := credentials.NewStore(runner).Resolve(ctx, credentials.ProviderAggregator, cfg.AggregatorAPIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: read aggregator key")
	}
	gateway, err := aggregator.NewClient(aggregator.Options{
		APIKey:        key,
		BaseURL:       cfg.AggregatorBaseURL,
		RatePerSecond: cfg.AggregatorRatePerSec,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep: aggregator client")
	}

	jobs := repo.NewJobRepository(runner)
	led := ledger.NewService(repo.NewLedgerRepository(runner), logger)
	reconciler := generation.NewReconciler(jobs, led, nil, logger)
	sweeper := generation.NewSweeper(generation.SweeperDeps{
		Jobs:        jobs,
		Reconciler:  reconciler,
		Refunds:     led,
		Gateway:     gateway,
		MaxLifetime: cfg.MaxJobLifetime,
		Logger:      logger,
	})

	report, err := sweeper.RunOnce(ctx)
	reconciler.Wait()
	if err != nil {
		logger.Error().Err(err).Interface("report", report).Msg("sweep finished with errors")
		os.Exit(1)
	}
	logger.Info().Interface("report", report).Msg("sweep finished")
}
