package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotency-Replayed"
	loadPassword      = "load-password"
)

type unexpectedStatusError struct {
	step   string
	status int
	body   string
}

func (e *unexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.step, e.status, e.body)
}

// apiClient выполняет шаги сценария против HTTP API и пишет их в collector.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func newAPIClient(cfg config, col *collector) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(cfg.baseURL, "/"),
		http:    &http.Client{Timeout: cfg.timeout},
		timeout: cfg.timeout,
		col:     col,
	}
}

type callSpec struct {
	step           string
	method         string
	path           string
	token          string
	idempotencyKey string
	body           any
	want           int
	out            any
}

func (c *apiClient) do(ctx context.Context, spec callSpec) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if spec.body != nil {
		raw, err := json.Marshal(spec.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", spec.step, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.baseURL+spec.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", spec.step, err)
	}
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if spec.token != "" {
		req.Header.Set("Authorization", "Bearer "+spec.token)
	}
	if spec.idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, spec.idempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(spec.step, time.Since(start), statusLabel(0, err), false)
		return nil, fmt.Errorf("%s: %w", spec.step, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	ok := resp.StatusCode == spec.want && readErr == nil
	c.col.record(spec.step, time.Since(start), statusLabel(resp.StatusCode, nil), ok)

	if readErr != nil {
		return nil, fmt.Errorf("%s: read body: %w", spec.step, readErr)
	}
	if resp.StatusCode != spec.want {
		return nil, &unexpectedStatusError{step: spec.step, status: resp.StatusCode, body: string(raw)}
	}
	if spec.out != nil {
		if err := json.Unmarshal(raw, spec.out); err != nil {
			return nil, fmt.Errorf("%s: decode body: %w", spec.step, err)
		}
	}
	return resp.Header, nil
}

type productSummary struct {
	ID string `json:"_id"`
}

// discoverProduct выбирает товар для сценариев, если он не задан флагом.
func (c *apiClient) discoverProduct(ctx context.Context) (string, error) {
	var page struct {
		Products []productSummary `json:"products"`
	}
	if _, err := c.do(ctx, callSpec{step: "ListProducts", method: http.MethodGet, path: "/products?limit=1", want: http.StatusOK, out: &page}); err != nil {
		return "", err
	}
	if len(page.Products) == 0 {
		return "", errors.New("catalog is empty, seed at least one product or pass -product")
	}
	return page.Products[0].ID, nil
}

func (c *apiClient) browse(ctx context.Context, productID string) error {
	var page struct {
		Products []productSummary `json:"products"`
	}
	if _, err := c.do(ctx, callSpec{step: "ListProducts", method: http.MethodGet, path: "/products?limit=20", want: http.StatusOK, out: &page}); err != nil {
		return err
	}
	_, err := c.do(ctx, callSpec{step: "GetProduct", method: http.MethodGet, path: "/products/" + productID, want: http.StatusOK})
	return err
}

// signup регистрирует покупателя и возвращает токен сессии.
func (c *apiClient) signup(ctx context.Context, email string) (string, error) {
	register := map[string]string{
		"name":        "Load Tester",
		"email":       email,
		"phoneNumber": "08012345678",
		"password":    loadPassword,
	}
	if _, err := c.do(ctx, callSpec{step: "Register", method: http.MethodPost, path: "/auth/register", body: register, want: http.StatusCreated}); err != nil {
		return "", err
	}

	var session struct {
		Token string `json:"token"`
	}
	login := map[string]string{"email": email, "password": loadPassword}
	if _, err := c.do(ctx, callSpec{step: "Login", method: http.MethodPost, path: "/auth/login", body: login, want: http.StatusOK, out: &session}); err != nil {
		return "", err
	}
	if session.Token == "" {
		return "", errors.New("login returned empty token")
	}
	return session.Token, nil
}

func checkoutBody(email string) map[string]any {
	return map[string]any{
		"paymentMethod": "cash",
		"shipmentInfo": map[string]string{
			"name":        "Load Tester",
			"address":     "1 Benchmark Way",
			"city":        "Lagos",
			"phoneNumber": "08012345678",
			"email":       email,
		},
	}
}

// checkout проходит путь покупателя от регистрации до заказа. При replay
// повторяет оформление с тем же ключом и ждёт сохранённый ответ.
func (c *apiClient) checkout(ctx context.Context, email, productID, key string, replay bool) error {
	token, err := c.signup(ctx, email)
	if err != nil {
		return err
	}

	addToCart := map[string]any{"productId": productID, "quantity": 1}
	if _, err := c.do(ctx, callSpec{step: "ToggleCart", method: http.MethodPost, path: "/cart", token: token, body: addToCart, want: http.StatusOK}); err != nil {
		return err
	}

	var order struct {
		TrackingID string `json:"trackingId"`
	}
	body := checkoutBody(email)
	place := callSpec{step: "PlaceOrder", method: http.MethodPost, path: "/orders", token: token, idempotencyKey: key, body: body, want: http.StatusCreated, out: &order}
	if _, err := c.do(ctx, place); err != nil {
		return err
	}
	if order.TrackingID == "" {
		return errors.New("place order returned empty tracking id")
	}
	if !replay {
		return nil
	}

	var replayed struct {
		TrackingID string `json:"trackingId"`
	}
	place.step = "ReplayOrder"
	place.out = &replayed
	header, err := c.do(ctx, place)
	if err != nil {
		return err
	}
	if header.Get(replayedHeader) != "true" || replayed.TrackingID != order.TrackingID {
		return fmt.Errorf("replay returned a different order: %s", replayed.TrackingID)
	}
	return nil
}

func runScenario(ctx context.Context, client *apiClient, cfg config, productID string, index int, runID string) error {
	scenarioStart := time.Now()
	var err error
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		client.col.record(scenarioMethod, time.Since(scenarioStart), status, err == nil)
	}()

	email := fmt.Sprintf("%s-%s-%d@load.test", cfg.customerTag, runID, index)
	key := fmt.Sprintf("lt-%s-%d", runID, index)

	switch cfg.mode {
	case modeBrowse:
		err = client.browse(ctx, productID)
	case modeCheckout:
		err = client.checkout(ctx, email, productID, key, false)
	case modeCheckoutReplay:
		err = client.checkout(ctx, email, productID, key, true)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.mode)
	}
	return err
}
