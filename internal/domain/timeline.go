package domain

import "time"

// Типы событий журнала заказа.
const (
	TimelineOrderPlaced   = "order.placed"
	TimelineStatusChanged = "order.status_changed"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	From     OrderStatus
	To       OrderStatus
	ActorID  string
	Reason   string
	Occurred time.Time
}
