package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderPlacer оформляет заказ одной транзакцией: вставка заказа,
// очистка корзины с проверкой версии и запись события в outbox.
type orderPlacer struct {
	store *Store
}

// NewOrderPlacer создаёт транзакционную реализацию OrderPlacer.
func NewOrderPlacer(store *Store) domain.OrderPlacer {
	return &orderPlacer{store: store}
}

func (p *orderPlacer) PlaceOrder(ctx context.Context, order domain.Order, cart domain.Cart, event domain.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return p.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		cleared := cart.Clone()
		cleared.Clear()
		if _, err := saveCartVersioned(ctx, tx, cleared, order.CreatedAt); err != nil {
			return err
		}

		if _, err := enqueueOutbox(ctx, tx, event); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}
		return nil
	})
}

var _ domain.OrderPlacer = (*orderPlacer)(nil)
