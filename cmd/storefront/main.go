package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envHTTPAddr    = "STOREFRONT_HTTP_ADDR"
	envMetricsAddr = "STOREFRONT_METRICS_ADDR"
	envGRPCAddr    = "STOREFRONT_GRPC_ADDR"
	envLogLevel    = "STOREFRONT_LOG_LEVEL"

	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envMongoURI            = "STOREFRONT_MONGO_URI"
	envMongoDatabase       = "STOREFRONT_MONGO_DATABASE"

	envJWTSecret = "STOREFRONT_JWT_SECRET"
	envJWTIssuer = "STOREFRONT_JWT_ISSUER"
	envJWTTTL    = "STOREFRONT_JWT_TTL"

	envAdminEmail    = "STOREFRONT_ADMIN_EMAIL"
	envAdminPassword = "STOREFRONT_ADMIN_PASSWORD"
	envAdminName     = "STOREFRONT_ADMIN_NAME"
	envAdminPhone    = "STOREFRONT_ADMIN_PHONE"

	envPaymentProvider = "STOREFRONT_PAYMENT_PROVIDER"
	envStripeSecretKey = "STRIPE_SECRET_KEY"
	envStripeCurrency  = "STOREFRONT_PAYMENT_CURRENCY"

	envKafkaBrokers  = "KAFKA_BROKERS"
	envKafkaTopic    = "STOREFRONT_KAFKA_TOPIC"
	envKafkaDLQTopic = "STOREFRONT_KAFKA_DLQ_TOPIC"

	envSalesProjector     = "STOREFRONT_SALES_PROJECTOR"
	envSalesConsumerGroup = "STOREFRONT_SALES_CONSUMER_GROUP"

	envOutboxPollInterval = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "STOREFRONT_OUTBOX_RETRY_DELAY"

	envIdempotencyTTL              = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envConsulAddr      = "CONSUL_HTTP_ADDR"
	envConsulService   = "STOREFRONT_CONSUL_SERVICE"
	envConsulAdvertise = "STOREFRONT_CONSUL_ADVERTISE"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	if parsed != log.DebugLevel && parsed != log.TraceLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и
// возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = parsed
		}
	}
	positiveInt := func(key string, dst *int) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parsePositiveInt(v)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration, allowZero bool) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseDuration(v, allowZero)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = parsed
		}
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)

	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envMongoURI, &cfg.MongoURI)
	str(envMongoDatabase, &cfg.MongoDatabase)

	str(envJWTSecret, &cfg.JWTSecret)
	str(envJWTIssuer, &cfg.JWTIssuer)
	duration(envJWTTTL, &cfg.JWTTTL, false)

	str(envAdminEmail, &cfg.AdminEmail)
	str(envAdminPassword, &cfg.AdminPassword)
	str(envAdminName, &cfg.AdminName)
	str(envAdminPhone, &cfg.AdminPhone)

	if v, ok := lookupTrimmed(lookup, envPaymentProvider); ok {
		cfg.PaymentProvider = app.PaymentProvider(strings.ToLower(v))
	}
	str(envStripeSecretKey, &cfg.StripeSecretKey)
	str(envStripeCurrency, &cfg.StripeCurrency)

	if v, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = parseList(v)
	}
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	boolean(envSalesProjector, &cfg.SalesProjectorEnabled)
	str(envSalesConsumerGroup, &cfg.SalesConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, false)
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, true)

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, false)
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, false)
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	str(envConsulAddr, &cfg.ConsulAddr)
	str(envConsulService, &cfg.ConsulServiceName)
	str(envConsulAdvertise, &cfg.ConsulAdvertise)

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected positive integer, got %q", v)
	}
	return n, nil
}

func parseDuration(v string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("duration must be positive, got %q", v)
	}
	return d, nil
}

func parseList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadDotEnv подгружает .env, если файл есть; переменные окружения главнее.
func loadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func main() {
	dotenvErr := loadDotEnv()
	setupLogger(os.Getenv(envLogLevel))
	if dotenvErr != nil {
		log.WithError(dotenvErr).Warn("failed to load .env")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        cfg.KafkaEnabled(),
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
