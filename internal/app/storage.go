package app

import (
	"context"
	"fmt"

	"valutatrade/config"
	"valutatrade/internal/adapter/storage/memory"
	pgStorage "valutatrade/internal/adapter/storage/postgres"
	redisStorage "valutatrade/internal/adapter/storage/redis"
	"valutatrade/internal/core/ports"

	"github.com/rs/zerolog"
)

// storage groups the persistence adapters selected by storage.driver.
type storage struct {
	users       ports.UserRepository
	wallets     ports.WalletRepository
	transactor  ports.DBTransactor
	history     ports.RateHistoryRepository
	actions     ports.ActionLogRepository
	snapshots   ports.RateSnapshotStore
	limiter     ports.RateLimiter
	idempotency ports.IdempotencyCache
	health      []ports.HealthChecker
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return openMemory(log), nil
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openMemory(log zerolog.Logger) *storage {
	store := memory.NewStore()
	log.Warn().Msg("Using in-memory storage, data is lost on restart")
	return &storage{
		users:       memory.NewUserRepo(store),
		wallets:     memory.NewWalletRepo(store),
		transactor:  memory.NewTransactor(store),
		history:     memory.NewRateHistoryRepo(store),
		actions:     memory.NewActionRepo(store),
		snapshots:   memory.NewRateSnapshotStore(store),
		limiter:     memory.NewRateLimiter(),
		idempotency: memory.NewIdempotencyCache(),
		health:      []ports.HealthChecker{store},
		close:       func() {},
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pgStorage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating postgres: %w", err)
	}
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Info().Msg("Redis connected")

	return &storage{
		users:       pgStorage.NewUserRepo(pool),
		wallets:     pgStorage.NewWalletRepo(pool),
		transactor:  pgStorage.NewTransactor(pool),
		history:     pgStorage.NewRateHistoryRepo(pool),
		actions:     pgStorage.NewActionRepo(pool),
		snapshots:   redisStorage.NewRateSnapshotStore(rdb, redisStorage.DefaultSnapshotKey),
		limiter:     redisStorage.NewRateLimitStore(rdb),
		idempotency: redisStorage.NewIdempotencyCache(rdb),
		health: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb, redisStorage.DefaultSnapshotKey),
		},
		close: func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("Closing redis client")
			}
			pool.Close()
		},
	}, nil
}
