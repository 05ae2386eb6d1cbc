package payment

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/resilience"
)

// toMinor переводит сумму в минимальные единицы валюты.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MockGateway - конфигурируемая заглушка PaymentGateway: подтверждены только
// зарегистрированные ссылки на сумму не меньше ожидаемой.
type MockGateway struct {
	mu       sync.Mutex
	payments map[string]int64
	err      error

	VerifyCalls int
}

// NewMockGateway возвращает заглушку без подтверждённых платежей.
func NewMockGateway() *MockGateway {
	return &MockGateway{payments: make(map[string]int64)}
}

// Confirm регистрирует успешный платёж по ссылке.
func (m *MockGateway) Confirm(reference string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[reference] = toMinor(amount)
}

// FailWith заставляет Verify возвращать err (сбой шлюза).
func (m *MockGateway) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Verify проверяет ссылку по зарегистрированным платежам.
func (m *MockGateway) Verify(_ context.Context, reference string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VerifyCalls++
	if m.err != nil {
		return m.err
	}
	paid, ok := m.payments[strings.TrimSpace(reference)]
	if !ok || paid < toMinor(amount) {
		return domain.ErrPaymentNotConfirmed
	}
	return nil
}

// BreakerGateway защищает шлюз circuit breaker'ом: отказ в подтверждении
// не считается неисправностью шлюза.
type BreakerGateway struct {
	next    domain.PaymentGateway
	breaker *resilience.CircuitBreaker
}

// NewBreakerGateway оборачивает шлюз.
func NewBreakerGateway(next domain.PaymentGateway, breaker *resilience.CircuitBreaker) *BreakerGateway {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(5, defaultBreakerReset, log.WithField("component", "payment-breaker"))
	}
	return &BreakerGateway{next: next, breaker: breaker}
}

// Verify делегирует проверку, пока цепь замкнута.
func (g *BreakerGateway) Verify(ctx context.Context, reference string, amount float64) error {
	return g.breaker.Execute("payment.verify", func() error {
		return g.next.Verify(ctx, reference, amount)
	}, func(err error) bool {
		return errors.Is(err, domain.ErrPaymentNotConfirmed)
	})
}

var (
	_ domain.PaymentGateway = (*MockGateway)(nil)
	_ domain.PaymentGateway = (*BreakerGateway)(nil)
)
