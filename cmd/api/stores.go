package main

import (
	"context"

	"studio/internal/adapter/memstore"
	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

const demoUserID = "00000000-0000-0000-0000-000000000001"

type stores struct {
	jobs      domain.JobRepository
	ledger    domain.LedgerRepository
	purchases domain.PurchaseRepository
	users     domain.UserRepository
	tokens    *credentials.Store
	ping      func(ctx context.Context) error
	close     func()
}

func openStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*stores, error) {
	if cfg.StoreDriver == infra.StoreDriverMemory {
		mem := memstore.New()
		mem.PutUser(domain.User{ID: demoUserID, Email: "demo@studio.local", Name: "Demo", Role: domain.UserRoleAdmin, Credits: 500})
		logger.Warn().Str("user_id", demoUserID).Msg("in-memory store: state is lost on restart")
		return &stores{
			jobs:      mem,
			ledger:    mem,
			purchases: mem,
			users:     mem,
			close:     func() {},
		}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &stores{
		jobs:      repo.NewJobRepository(runner),
		ledger:    repo.NewLedgerRepository(runner),
		purchases: repo.NewPurchaseRepository(runner),
		users:     repo.NewUserRepository(runner),
		tokens:    credentials.NewStore(runner),
		ping:      pool.Ping,
		close:     pool.Close,
	}, nil
}

type secretResolver interface {
	Resolve(ctx context.Context, provider, configured string) (string, error)
}

// secret returns configured when set, otherwise the key stored for provider.
func (s *stores) secret(ctx context.Context, provider, configured string, logger infra.Logger) string {
	if s.tokens == nil {
		return configured
	}
	return resolveSecret(ctx, s.tokens, provider, configured, logger)
}

func resolveSecret(ctx context.Context, tokens secretResolver, provider, configured string, logger infra.Logger) string {
	key, err := tokens.Resolve(ctx, provider, configured)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("failed to read stored api key")
		return configured
	}
	return key
}
