package checkout

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// CompensatingPlacer оформляет заказ без общей транзакции: создаёт заказ,
// очищает корзину с проверкой версии и при неудаче удаляет созданный заказ.
// Используется хранилищами без транзакций между коллекциями.
type CompensatingPlacer struct {
	orders  domain.OrderRepository
	carts   domain.CartRepository
	outbox  domain.OutboxRepository
	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
}

// NewCompensatingPlacer создаёт OrderPlacer поверх отдельных репозиториев.
func NewCompensatingPlacer(
	orders domain.OrderRepository,
	carts domain.CartRepository,
	outbox domain.OutboxRepository,
	m *metrics.CheckoutMetrics,
	logger *log.Entry,
) *CompensatingPlacer {
	if logger == nil {
		logger = log.WithField("component", "checkout-placer")
	}
	return &CompensatingPlacer{orders: orders, carts: carts, outbox: outbox, metrics: m, logger: logger}
}

// PlaceOrder сохраняет заказ и очищает корзину. Ошибка записи в outbox не
// откатывает заказ: событие теряется, заказ остаётся.
func (p *CompensatingPlacer) PlaceOrder(ctx context.Context, order domain.Order, cart domain.Cart, event domain.OutboxMessage) error {
	if err := p.orders.Create(ctx, order); err != nil {
		return err
	}

	cleared := cart.Clone()
	cleared.Clear()
	if _, err := p.carts.Save(ctx, cleared); err != nil {
		return p.compensate(ctx, order, err)
	}

	if p.outbox != nil {
		if _, err := p.outbox.Enqueue(ctx, event); err != nil {
			p.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order event")
		} else {
			p.metrics.RecordOutboxEvent()
		}
	}
	return nil
}

func (p *CompensatingPlacer) compensate(ctx context.Context, order domain.Order, cause error) error {
	entry := p.logger.WithFields(log.Fields{"order_id": order.ID, "user_id": order.UserID})
	entry.WithError(cause).Warn("cart clear failed, deleting order")

	// Отмена запроса не должна оставить заказ без корзины.
	if err := p.orders.Delete(context.WithoutCancel(ctx), order.ID); err != nil {
		entry.WithError(err).Error("order compensation failed")
		return errors.Join(cause, fmt.Errorf("delete order %s: %w", order.ID, err))
	}
	p.metrics.RecordCheckoutCompensated()
	return cause
}

var _ domain.OrderPlacer = (*CompensatingPlacer)(nil)
