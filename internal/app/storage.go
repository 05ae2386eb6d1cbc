package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const storageOpenTimeout = 15 * time.Second

// runtimeStorage - репозитории выбранного backend'а.
type runtimeStorage struct {
	catalog     domain.CatalogRepository
	carts       domain.CartRepository
	users       domain.UserRepository
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	outbox      domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	// placer задан только там, где хранилище умеет атомарную запись заказа.
	placer domain.OrderPlacer

	ping  func(ctx context.Context) error
	close func()
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeStorage, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return newMemoryStorage(), nil
	case StorageDriverPostgres:
		return openPostgresStorage(ctx, cfg, logger)
	case StorageDriverMongo:
		return openMongoStorage(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryStorage() *runtimeStorage {
	return &runtimeStorage{
		catalog:     memory.NewCatalogRepository(),
		carts:       memory.NewCartRepository(),
		users:       memory.NewUserRepository(),
		orders:      memory.NewOrderRepository(),
		timeline:    memory.NewTimelineRepository(),
		outbox:      memory.NewOutboxRepository(),
		idempotency: memory.NewIdempotencyRepository(),
		ping:        func(context.Context) error { return nil },
		close:       func() {},
	}
}

func openPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeStorage, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn is required for %s storage", StorageDriverPostgres)
	}

	openCtx, cancel := context.WithTimeout(ctx, storageOpenTimeout)
	defer cancel()

	store, err := postgres.Open(openCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(openCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("postgres storage initialized")

	return &runtimeStorage{
		catalog:     postgres.NewCatalogRepository(store),
		carts:       postgres.NewCartRepository(store),
		users:       postgres.NewUserRepository(store),
		orders:      postgres.NewOrderRepository(store),
		timeline:    postgres.NewTimelineRepository(store),
		outbox:      postgres.NewOutboxRepository(store),
		idempotency: postgres.NewIdempotencyRepository(store),
		placer:      postgres.NewOrderPlacer(store),
		ping:        store.Ping,
		close: func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("failed to close postgres store")
			}
		},
	}, nil
}

func openMongoStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeStorage, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("mongo uri is required for %s storage", StorageDriverMongo)
	}

	openCtx, cancel := context.WithTimeout(ctx, storageOpenTimeout)
	defer cancel()

	store, err := mongodb.Open(openCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureIndexes(openCtx); err != nil {
		_ = store.Close(context.Background())
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}
	logger.WithField("database", cfg.MongoDatabase).Info("mongo storage initialized")

	return &runtimeStorage{
		catalog:     mongodb.NewCatalogRepository(store),
		carts:       mongodb.NewCartRepository(store),
		users:       mongodb.NewUserRepository(store),
		orders:      mongodb.NewOrderRepository(store),
		timeline:    mongodb.NewTimelineRepository(store),
		outbox:      mongodb.NewOutboxRepository(store),
		idempotency: mongodb.NewIdempotencyRepository(store),
		ping:        store.Ping,
		close: func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.WithError(err).Warn("failed to close mongo store")
			}
		},
	}, nil
}
