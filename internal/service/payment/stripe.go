package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultBreakerReset = 30 * time.Second

// StripeGateway подтверждает оплату по идентификатору PaymentIntent.
type StripeGateway struct {
	client   paymentintent.Client
	currency string
	logger   *log.Entry
}

// NewStripeGateway создаёт шлюз поверх API backend Stripe.
func NewStripeGateway(secretKey, currency string, logger *log.Entry) *StripeGateway {
	return NewStripeGatewayWithBackend(secretKey, currency, stripe.GetBackend(stripe.APIBackend), logger)
}

// NewStripeGatewayWithBackend позволяет подменить backend (тесты, прокси).
func NewStripeGatewayWithBackend(secretKey, currency string, backend stripe.Backend, logger *log.Entry) *StripeGateway {
	if logger == nil {
		logger = log.WithField("component", "stripe-gateway")
	}
	return &StripeGateway{
		client:   paymentintent.Client{B: backend, Key: secretKey},
		currency: strings.ToLower(strings.TrimSpace(currency)),
		logger:   logger,
	}
}

// Verify запрашивает PaymentIntent и проверяет статус, валюту и полученную сумму.
func (g *StripeGateway) Verify(ctx context.Context, reference string, amount float64) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.ErrPaymentNotConfirmed
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := g.client.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && (stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
			return domain.ErrPaymentNotConfirmed
		}
		return fmt.Errorf("stripe get payment intent: %w", err)
	}

	entry := g.logger.WithFields(log.Fields{
		"payment_intent": intent.ID,
		"status":         intent.Status,
	})

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		entry.Info("payment intent is not succeeded")
		return domain.ErrPaymentNotConfirmed
	}
	if g.currency != "" && !strings.EqualFold(string(intent.Currency), g.currency) {
		entry.WithField("currency", intent.Currency).Warn("payment intent currency mismatch")
		return domain.ErrPaymentNotConfirmed
	}
	if intent.AmountReceived < toMinor(amount) {
		entry.WithFields(log.Fields{
			"amount_received": intent.AmountReceived,
			"amount_expected": toMinor(amount),
		}).Warn("payment intent amount is below order total")
		return domain.ErrPaymentNotConfirmed
	}
	return nil
}

var _ domain.PaymentGateway = (*StripeGateway)(nil)
