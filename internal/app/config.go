package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StorageDriver - backend хранения данных.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverMongo    StorageDriver = "mongo"
)

// PaymentProvider - способ проверки онлайн-оплат.
type PaymentProvider string

const (
	// PaymentProviderNone отключает онлайн-оплату: принимается только cash.
	PaymentProviderNone   PaymentProvider = "none"
	PaymentProviderStripe PaymentProvider = "stripe"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// Администратор создаётся при старте, если задан email.
	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminPhone    string

	PaymentProvider PaymentProvider
	StripeSecretKey string
	StripeCurrency  string

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	SalesProjectorEnabled bool
	SalesConsumerGroup    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ConsulAddr        string
	ConsulServiceName string
	// ConsulAdvertise - host:port HTTP API, публикуемый в Consul.
	ConsulAdvertise string
}

// DefaultConfig возвращает конфигурацию для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MongoDatabase:       "storefront",

		JWTIssuer: "storefront",
		JWTTTL:    24 * time.Hour,

		AdminName: "Administrator",

		PaymentProvider: PaymentProviderNone,
		StripeCurrency:  "ngn",

		KafkaTopic:         "storefront.order.events",
		KafkaDLQTopic:      "storefront.dlq",
		SalesConsumerGroup: "storefront-sales",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ConsulServiceName: "storefront",
	}
}

// KafkaEnabled сообщает, что заданы брокеры.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ConsulEnabled сообщает, что сервис нужно регистрировать в Consul.
func (c Config) ConsulEnabled() bool { return strings.TrimSpace(c.ConsulAddr) != "" }

// Validate проверяет обязательные для выбранных компонентов параметры.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("mongo uri is required for mongo storage"))
		}
		if strings.TrimSpace(c.MongoDatabase) == "" {
			errs = append(errs, errors.New("mongo database is required for mongo storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}

	switch c.PaymentProvider {
	case PaymentProviderNone:
	case PaymentProviderStripe:
		if strings.TrimSpace(c.StripeSecretKey) == "" {
			errs = append(errs, errors.New("stripe secret key is required for stripe payments"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider %q", c.PaymentProvider))
	}

	if c.SalesProjectorEnabled && !c.KafkaEnabled() {
		errs = append(errs, errors.New("sales projector requires kafka brokers"))
	}
	if c.AdminEmail != "" {
		if c.AdminPassword == "" {
			errs = append(errs, errors.New("admin password is required when admin email is set"))
		}
		if c.AdminPhone == "" {
			errs = append(errs, errors.New("admin phone is required when admin email is set"))
		}
	}
	if c.ConsulEnabled() && strings.TrimSpace(c.ConsulAdvertise) == "" {
		errs = append(errs, errors.New("consul advertise address is required when consul is enabled"))
	}

	return errors.Join(errs...)
}
