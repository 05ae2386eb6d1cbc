package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApplication(t *testing.T, cfg Config) *application {
	t.Helper()
	app, err := newApplication(context.Background(), cfg, prometheus.NewRegistry(), log.WithField("test", t.Name()))
	require.NoError(t, err)
	t.Cleanup(app.close)
	return app
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestNewApplicationMemoryWiring(t *testing.T) {
	app := newTestApplication(t, validConfig())

	assert.NotNil(t, app.router)
	assert.NotNil(t, app.cleanupWorker)
	assert.Nil(t, app.outboxWorker, "outbox worker needs kafka")
	assert.Nil(t, app.salesConsumer)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewApplicationBootstrapsAdmin(t *testing.T) {
	cfg := validConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "admin-password"
	cfg.AdminPhone = "08012345678"
	app := newTestApplication(t, cfg)

	w := postJSON(t, app.router, "/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "admin-password",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session struct {
		Token string `json:"token"`
		User  struct {
			IsAdmin bool `json:"isAdmin"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.User.IsAdmin)
}

func TestNewApplicationRejectsShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "short"

	_, err := newApplication(context.Background(), cfg, prometheus.NewRegistry(), log.WithField("test", t.Name()))
	require.ErrorContains(t, err, "init token manager")
}

func TestMetricsMuxEndpoints(t *testing.T) {
	app := newTestApplication(t, validConfig())
	mux := newMetricsMux(app.health)

	for _, path := range []string{"/metrics", "/healthz", "/livez", "/readyz"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewPaymentGateway(t *testing.T) {
	logger := log.WithField("test", "gateway")

	gateway, err := newPaymentGateway(Config{PaymentProvider: PaymentProviderNone}, logger)
	require.NoError(t, err)
	assert.Nil(t, gateway)

	gateway, err = newPaymentGateway(Config{PaymentProvider: PaymentProviderStripe, StripeSecretKey: "sk_test_123", StripeCurrency: "ngn"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &payment.BreakerGateway{}, gateway)

	_, err = newPaymentGateway(Config{PaymentProvider: "paypal"}, logger)
	require.Error(t, err)
}

func TestGRPCServerRegistersHealth(t *testing.T) {
	srv := newGRPCServer(log.WithField("test", "grpc"))
	defer srv.stop(log.WithField("test", "grpc"))

	_, ok := srv.server.GetServiceInfo()["grpc.health.v1.Health"]
	assert.True(t, ok)
}

func TestConsulHealthURL(t *testing.T) {
	cfg := Config{ConsulAdvertise: "10.0.0.7:8080", MetricsAddr: ":9090"}
	assert.Equal(t, "http://10.0.0.7:9090/readyz", consulHealthURL(cfg))

	cfg.ConsulAdvertise = "no-port"
	assert.Empty(t, consulHealthURL(cfg))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	err := Run(context.Background(), DefaultConfig())
	require.ErrorContains(t, err, "invalid config")
}

func TestInitMessagingDisabledWithoutBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")
	m := initMessaging(validConfig(), logger)

	assert.False(t, m.enabled())
	assert.Nil(t, m.publisher)
	assert.Nil(t, m.probe)
	m.close(logger)

	var missing *runtimeMessaging
	assert.False(t, missing.enabled())
	missing.close(logger)
}
