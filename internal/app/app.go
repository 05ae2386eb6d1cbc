package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/resilience"
	"github.com/vladislavdragonenkov/storefront/internal/service/sales"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// application - собранный сервис: хранилище, брокер, HTTP API и фоновые воркеры.
type application struct {
	cfg    Config
	logger *log.Entry

	storage   *runtimeStorage
	messaging *runtimeMessaging

	router *gin.Engine
	health *healthcheck.Handler

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
	salesConsumer *kafka.Consumer
}

// newApplication собирает зависимости, но не открывает сетевые порты.
func newApplication(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*application, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, logger: logger, storage: store}

	if err := app.wire(ctx, registerer); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire(ctx context.Context, registerer prometheus.Registerer) error {
	cfg, store, logger := a.cfg, a.storage, a.logger

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}

	a.messaging = initMessaging(cfg, logger)

	checkoutMetrics := metrics.NewCheckoutMetricsWithRegisterer(registerer)
	retry := resilience.DefaultRetryConfig()

	placer := store.placer
	if placer == nil {
		placer = checkout.NewCompensatingPlacer(store.orders, store.carts, store.outbox, checkoutMetrics, logger.WithField("component", "checkout-placer"))
	}

	gateway, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}

	accounts := account.NewService(store.users, store.carts, store.catalog, tokens, logger.WithField("component", "account"))
	if err := bootstrapAdmin(ctx, cfg, accounts, logger); err != nil {
		return err
	}

	a.router = httpapi.NewRouter(httpapi.Dependencies{
		Catalog: catalog.NewService(store.catalog, logger.WithField("component", "catalog")),
		Carts:   cart.NewService(store.carts, store.catalog, retry, logger.WithField("component", "cart")),
		Checkout: checkout.NewService(checkout.Dependencies{
			Carts:    store.carts,
			Catalog:  store.catalog,
			Placer:   placer,
			Gateway:  gateway,
			Timeline: store.timeline,
			Metrics:  checkoutMetrics,
			Retry:    retry,
			Logger:   logger.WithField("component", "checkout"),
		}),
		Orders:         orders.NewService(store.orders, store.timeline, store.outbox, checkoutMetrics, logger.WithField("component", "orders")),
		Accounts:       accounts,
		Tokens:         tokens,
		Idempotency:    store.idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        metrics.NewHTTPMetrics(registerer),
		Logger:         logger.WithField("component", "http-api"),
	})

	a.health = healthcheck.NewHandler(version.GetVersion())
	a.health.RegisterChecker("storage", healthcheck.NewPingChecker("storage", store.ping))
	if a.messaging.probe != nil {
		a.health.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", a.messaging.probe.Ping))
	}

	if a.messaging.enabled() {
		a.outboxWorker = outbox.NewWorker(store.outbox, a.messaging.publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(a.messaging.dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	}

	a.cleanupWorker = idempotency.NewCleanupWorker(store.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	if cfg.SalesProjectorEnabled {
		projector := sales.NewProjector(store.catalog, store.idempotency, logger.WithField("component", "sales-projector"))
		consumer, err := newSalesConsumer(cfg, projector, a.messaging, logger)
		if err != nil {
			return fmt.Errorf("init sales consumer: %w", err)
		}
		a.salesConsumer = consumer
	}
	return nil
}

// newPaymentGateway возвращает nil, если онлайн-оплата выключена.
func newPaymentGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	switch cfg.PaymentProvider {
	case "", PaymentProviderNone:
		return nil, nil
	case PaymentProviderStripe:
		gatewayLogger := logger.WithField("component", "stripe-gateway")
		stripeGateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeCurrency, gatewayLogger)
		breaker := resilience.NewCircuitBreaker(5, 30*time.Second, gatewayLogger)
		return payment.NewBreakerGateway(stripeGateway, breaker), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.PaymentProvider)
	}
}

func bootstrapAdmin(ctx context.Context, cfg Config, accounts *account.Service, logger *log.Entry) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	admin, err := accounts.EnsureAdmin(ctx, account.RegisterRequest{
		Name:        cfg.AdminName,
		Email:       cfg.AdminEmail,
		PhoneNumber: cfg.AdminPhone,
		Password:    cfg.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.WithField("user_id", admin.ID).Info("admin account ready")
	return nil
}

// startWorkers запускает фоновые воркеры; они завершаются по отмене ctx.
func (a *application) startWorkers(ctx context.Context) error {
	if a.outboxWorker != nil {
		go a.outboxWorker.Run(ctx)
	}
	go a.cleanupWorker.Run(ctx)

	if a.salesConsumer != nil {
		if err := a.salesConsumer.Start(ctx); err != nil {
			return fmt.Errorf("start sales consumer: %w", err)
		}
	}
	return nil
}

func (a *application) close() {
	if a.salesConsumer != nil {
		if err := a.salesConsumer.Stop(); err != nil {
			a.logger.WithError(err).Warn("failed to stop sales consumer")
		}
	}
	a.messaging.close(a.logger)
	if a.storage != nil {
		a.storage.close()
	}
}

// Run поднимает HTTP API, gRPC health и сервер метрик и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := newApplication(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.startWorkers(ctx); err != nil {
		return err
	}

	metricsSrv := startMetricsServer(cfg.MetricsAddr, app.health, logger)
	defer shutdownHTTP(metricsSrv, logger)

	errCh := make(chan error, 2)
	grpcSrv, err := startGRPCServer(cfg.GRPCAddr, logger, errCh)
	if err != nil {
		return err
	}
	defer grpcSrv.stop(logger)

	apiSrv := startAPIServer(cfg.HTTPAddr, app.router, logger, errCh)
	defer shutdownHTTP(apiSrv, logger)

	if cfg.ConsulEnabled() {
		deregister, err := registerInConsul(cfg, logger)
		if err != nil {
			logger.WithError(err).Warn("consul registration failed, continuing without discovery")
		} else {
			defer deregister()
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
