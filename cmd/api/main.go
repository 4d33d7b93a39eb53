package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"studio/internal/billing"
	"studio/internal/generation"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/ledger"
	"studio/internal/providers/aggregator"
	"studio/internal/providers/payment"
	"studio/internal/storage"
	"studio/internal/thumbnail"
	"studio/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.close()

	aggregatorKey := st.secret(ctx, credentials.ProviderAggregator, cfg.AggregatorAPIKey, logger)
	gateway, err := aggregator.NewClient(aggregator.Options{
		APIKey:        aggregatorKey,
		BaseURL:       cfg.AggregatorBaseURL,
		CallbackURL:   cfg.AggregatorCallbackURL,
		RatePerSecond: cfg.AggregatorRatePerSec,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build aggregator client")
	}
	if !gateway.HasCredentials() {
		logger.Warn().Msg("aggregator api key missing; submissions will fail and be refunded")
	}

	catalog := generation.NewCatalog(generation.DefaultModels)
	if cfg.GenerationModels != "" {
		if catalog, err = generation.ParseCatalog(cfg.GenerationModels); err != nil {
			logger.Fatal().Err(err).Msg("invalid GENERATION_MODELS")
		}
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	led := ledger.NewService(st.ledger, logger)
	thumbs := thumbnail.NewExtractor(cfg.FFmpegPath, files, st.jobs, logger)
	reconciler := generation.NewReconciler(st.jobs, led, thumbs, logger)
	supervisor := generation.NewSupervisor(gateway, reconciler, generation.SupervisorOptions{
		Interval:    cfg.PollInterval,
		MaxLifetime: cfg.MaxJobLifetime,
	}, logger)
	genService := generation.NewService(generation.ServiceDeps{
		Jobs:       st.jobs,
		Ledger:     led,
		Gateway:    gateway,
		Supervisor: supervisor,
		Catalog:    catalog,
		Logger:     logger,
	})

	app := &handlers.App{
		Logger:     logger,
		Generation: genService,
		Ledger:     led,
		Users:      st.users,
		Files:      files,
		Webhooks:   webhook.NewIngest(st.jobs, reconciler, supervisor, logger),
		Ping:       st.ping,
	}
	if paymentKey := st.secret(ctx, credentials.ProviderPayment, cfg.PaymentSecretKey, logger); paymentKey != "" {
		charges := payment.NewClient(payment.Options{
			SecretKey: paymentKey,
			BaseURL:   cfg.PaymentBaseURL,
			Logger:    &logger,
		})
		app.Billing = billing.NewService(st.purchases, led, charges, nil, cfg.PaymentCurrency, logger)
		app.Payments = webhook.NewPaymentIngest(app.Billing, logger)
	} else {
		logger.Warn().Msg("payment key not configured; top ups disabled")
	}

	sweeper := generation.NewSweeper(generation.SweeperDeps{
		Jobs:        st.jobs,
		Reconciler:  reconciler,
		Refunds:     led,
		Supervisor:  supervisor,
		Gateway:     gateway,
		MaxLifetime: cfg.MaxJobLifetime,
		Logger:      logger,
	})
	if report, err := sweeper.RunOnce(ctx); err != nil {
		logger.Error().Err(err).Msg("boot sweep incomplete")
	} else {
		logger.Info().Interface("report", report).Msg("boot sweep finished")
	}
	if err := sweeper.Start(ctx, cfg.SweepSchedule); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("invalid SWEEP_SCHEDULE")
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, cfg, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("store", cfg.StoreDriver).Msg("API listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		sweeper.Stop()
		if serr := supervisor.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Msg("pollers did not stop in time")
		}
		reconciler.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
