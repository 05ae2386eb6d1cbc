package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderPlacedEvent - полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID       string           `json:"order_id"`
	TrackingID    string           `json:"tracking_id"`
	UserID        string           `json:"user_id"`
	TotalAmount   float64          `json:"total_amount"`
	ItemCount     int              `json:"item_count"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	Items         []OrderEventItem `json:"items"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// OrderEventItem - позиция заказа в событии.
type OrderEventItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderStatusChangedEvent - полезная нагрузка события order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID    string      `json:"order_id"`
	TrackingID string      `json:"tracking_id"`
	UserID     string      `json:"user_id"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	ActorID    string      `json:"actor_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewOrderPlacedMessage готовит outbox-сообщение о созданном заказе.
func NewOrderPlacedMessage(order Order) (OutboxMessage, error) {
	items := make([]OrderEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderEventItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	return newOrderMessage(order, EventOrderPlaced, OrderPlacedEvent{
		OrderID:       order.ID,
		TrackingID:    order.TrackingID,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		ItemCount:     order.ItemCount(),
		PaymentMethod: order.PaymentMethod,
		Items:         items,
		OccurredAt:    order.CreatedAt,
	})
}

// NewStatusChangedMessage готовит outbox-сообщение о смене статуса.
func NewStatusChangedMessage(order Order, from OrderStatus, actorID string) (OutboxMessage, error) {
	return newOrderMessage(order, EventOrderStatusChanged, OrderStatusChangedEvent{
		OrderID:    order.ID,
		TrackingID: order.TrackingID,
		UserID:     order.UserID,
		From:       from,
		To:         order.Status,
		ActorID:    actorID,
		OccurredAt: order.UpdatedAt,
	})
}

func newOrderMessage(order Order, eventType string, payload any) (OutboxMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     order.UpdatedAt,
	}, nil
}
