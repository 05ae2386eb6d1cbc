package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret-0123456789"
	return cfg
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, PaymentProviderNone, cfg.PaymentProvider)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.ConsulEnabled())
	assert.Positive(t, cfg.OutboxPollInterval)
	assert.Positive(t, cfg.OutboxBatchSize)
	assert.Positive(t, cfg.IdempotencyTTL)
	assert.Positive(t, cfg.IdempotencyCleanupBatchSize)

	require.Error(t, cfg.Validate(), "jwt secret has no default")
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "postgres dsn is required",
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverMongo },
			wantErr: "mongo uri is required",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: `unsupported storage driver "sqlite"`,
		},
		{
			name:    "stripe without key",
			mutate:  func(c *Config) { c.PaymentProvider = PaymentProviderStripe },
			wantErr: "stripe secret key is required",
		},
		{
			name:    "unknown payment provider",
			mutate:  func(c *Config) { c.PaymentProvider = "paypal" },
			wantErr: `unsupported payment provider "paypal"`,
		},
		{
			name:    "sales projector without kafka",
			mutate:  func(c *Config) { c.SalesProjectorEnabled = true },
			wantErr: "sales projector requires kafka brokers",
		},
		{
			name:    "admin without password",
			mutate:  func(c *Config) { c.AdminEmail = "admin@example.com" },
			wantErr: "admin password is required",
		},
		{
			name:    "consul without advertise address",
			mutate:  func(c *Config) { c.ConsulAddr = "127.0.0.1:8500" },
			wantErr: "consul advertise address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfigValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres dsn is required")
	assert.Contains(t, err.Error(), "jwt secret is required")
}
