package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorefront повторяет контракт HTTP API в объёме, нужном сценариям.
type fakeStorefront struct {
	mu            sync.Mutex
	products      []string
	orders        map[string]string
	nextOrder     int
	breakReplay   bool
	failCheckouts bool
}

func newFakeStorefront(products ...string) *fakeStorefront {
	return &fakeStorefront{products: products, orders: make(map[string]string)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeStorefront) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, _ *http.Request) {
		list := make([]map[string]string, 0, len(f.products))
		for _, id := range f.products {
			list = append(list, map[string]string{"_id": id})
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": list, "totalCount": len(list)})
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"_id": r.PathValue("id")})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Signup successful"})
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]string{"token": "token-" + body["email"]})
	})
	mux.HandleFunc("POST /cart", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failCheckouts {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "cart is empty"})
			return
		}
		key := r.Header.Get(idempotencyHeader)
		if tracking, ok := f.orders[key]; ok && key != "" {
			if !f.breakReplay {
				w.Header().Set(replayedHeader, "true")
			}
			writeJSON(w, http.StatusCreated, map[string]string{"trackingId": tracking})
			return
		}
		f.nextOrder++
		tracking := strings.Repeat("1", 11) + string(rune('0'+f.nextOrder%10))
		f.orders[key] = tracking
		writeJSON(w, http.StatusCreated, map[string]string{"trackingId": tracking})
	})
	return mux
}

func testConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		total:       6,
		concurrency: 3,
		timeout:     time.Second,
		mode:        mode,
		customerTag: "test",
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.baseURL)
	assert.Equal(t, modeCheckout, cfg.mode)
	assert.Equal(t, 200, cfg.total)
	assert.False(t, cfg.totalSet)
	assert.Equal(t, 5*time.Second, cfg.timeout)
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := parseConfig([]string{"-mode=browse", "-total=10", "-duration=1m", "-product=p-1", "-base-url=http://api:8080/"})
	require.NoError(t, err)

	assert.Equal(t, modeBrowse, cfg.mode)
	assert.True(t, cfg.totalSet)
	assert.Equal(t, time.Minute, cfg.duration)
	assert.Equal(t, "p-1", cfg.productID)
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown mode":       {"-mode=pay"},
		"bad timeout":        {"-timeout=soon"},
		"zero timeout":       {"-timeout=0s"},
		"negative duration":  {"-duration=-1s"},
		"zero total":         {"-total=0"},
		"zero concurrency":   {"-concurrency=0"},
		"empty customer tag": {"-customer-tag= "},
		"unknown flag":       {"-addr=localhost:50051"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args)
			require.Error(t, err)
		})
	}
}

func TestRunLoadCheckout(t *testing.T) {
	fake := newFakeStorefront("p-1")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	result, err := runLoad(context.Background(), testConfig(srv.URL, modeCheckout))
	require.NoError(t, err)

	assert.EqualValues(t, 6, result.TotalScenarios)
	assert.EqualValues(t, 0, result.FailedScenarios)
	for _, step := range []string{"Register", "Login", "ToggleCart", "PlaceOrder"} {
		assert.EqualValues(t, 6, result.Methods[step].Calls, step)
	}
	assert.EqualValues(t, 6, result.Methods["PlaceOrder"].Statuses["201"])
	assert.Len(t, fake.orders, 6)
}

func TestRunLoadCheckoutReplay(t *testing.T) {
	fake := newFakeStorefront("p-1")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	result, err := runLoad(context.Background(), testConfig(srv.URL, modeCheckoutReplay))
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.FailedScenarios)
	assert.EqualValues(t, 6, result.Methods["ReplayOrder"].Calls)
	assert.Len(t, fake.orders, 6, "replays must not create orders")

	fake.breakReplay = true
	result, err = runLoad(context.Background(), testConfig(srv.URL, modeCheckoutReplay))
	require.NoError(t, err)
	assert.EqualValues(t, 6, result.FailedScenarios)
}

func TestRunLoadBrowseUsesExplicitProduct(t *testing.T) {
	srv := httptest.NewServer(newFakeStorefront().handler())
	defer srv.Close()

	cfg := testConfig(srv.URL, modeBrowse)
	cfg.productID = "p-9"
	result, err := runLoad(context.Background(), cfg)
	require.NoError(t, err)

	assert.EqualValues(t, 0, result.FailedScenarios)
	assert.EqualValues(t, 6, result.Methods["GetProduct"].Calls)
}

func TestRunLoadRecordsFailures(t *testing.T) {
	fake := newFakeStorefront("p-1")
	fake.failCheckouts = true
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	result, err := runLoad(context.Background(), testConfig(srv.URL, modeCheckout))
	require.NoError(t, err)

	assert.EqualValues(t, 6, result.FailedScenarios)
	assert.InDelta(t, 1.0, result.ErrorRate, 1e-9)
	assert.EqualValues(t, 6, result.Methods["PlaceOrder"].Statuses["400"])
}

func TestRunLoadEmptyCatalog(t *testing.T) {
	srv := httptest.NewServer(newFakeStorefront().handler())
	defer srv.Close()

	_, err := runLoad(context.Background(), testConfig(srv.URL, modeCheckout))
	require.ErrorContains(t, err, "catalog is empty")
}

func TestRunLoadTransportError(t *testing.T) {
	srv := httptest.NewServer(newFakeStorefront("p-1").handler())
	url := srv.URL
	srv.Close()

	cfg := testConfig(url, modeBrowse)
	cfg.productID = "p-1"
	result, err := runLoad(context.Background(), cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 6, result.Methods["ListProducts"].Statuses["transport_error"])
}

func TestDispatchJobsDurationWithTotalCap(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(context.Background(), jobs, config{duration: time.Minute, total: 3, totalSet: true})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestDispatchJobsStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make(chan int)
	dispatchJobs(ctx, jobs, config{total: 100})
	_, open := <-jobs
	assert.False(t, open)
}

func TestPercentileAndSummary(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
}

func TestPrintReportAndWriteJSON(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 10*time.Millisecond, "ok", true)
	col.record("PlaceOrder", 5*time.Millisecond, "201", true)
	result := col.buildReport(time.Now(), time.Second)

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCheckout, total: 1})
	assert.Contains(t, out.String(), "mode=checkout run=count:1 total=1 success=1")
	assert.Contains(t, out.String(), "PlaceOrder: calls=1")

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", result))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 1, decoded.TotalScenarios)

	require.Error(t, writeJSONReport("../escape.json", result))
	require.Error(t, writeJSONReport(".", result))
}
