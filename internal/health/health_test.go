package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okPing(context.Context) error { return nil }

func failingPing(context.Context) error { return errors.New("connection refused") }

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHealthHandlerHealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", okPing))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "v1.0.0", response.Version)
	assert.Len(t, response.Checks, 1)
}

func TestHealthHandlerUnhealthyStorage(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", failingPing))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", okPing))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := decodeResponse(t, w)
	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Equal(t, "connection refused", response.Checks["storage"].Message)
}

func TestHealthHandlerDegradedOptionalDependency(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewPingChecker("storage", okPing))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", failingPing))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	assert.Equal(t, StatusDegraded, response.Status)
	assert.Equal(t, StatusDegraded, response.Checks["kafka"].Status)
}

func TestHealthHandlerCheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 10 * time.Millisecond
	handler.RegisterChecker("storage", NewPingChecker("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	status, checks := handler.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
	assert.Contains(t, checks["storage"].Message, "deadline")
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", failingPing))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("storage", NewPingChecker("storage", failingPing))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Failed []string `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"storage"}, body.Failed)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
