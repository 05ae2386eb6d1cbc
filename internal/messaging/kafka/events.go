package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Топики по умолчанию.
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderReplayed      = "x-replayed"
)

// Envelope - формат события заказа в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key - ключ партиционирования: события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// ParseEnvelope разбирает событие из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope without event type at %s/%d/%d", message.Topic, message.Partition, message.Offset)
	}
	return env, nil
}

// OrderPlaced декодирует полезную нагрузку order.placed.
func (e Envelope) OrderPlaced() (domain.OrderPlacedEvent, error) {
	var event domain.OrderPlacedEvent
	if e.EventType != domain.EventOrderPlaced {
		return event, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return event, fmt.Errorf("unmarshal order placed: %w", err)
	}
	return event, nil
}

// StatusChanged декодирует полезную нагрузку order.status_changed.
func (e Envelope) StatusChanged() (domain.OrderStatusChangedEvent, error) {
	var event domain.OrderStatusChangedEvent
	if e.EventType != domain.EventOrderStatusChanged {
		return event, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return event, fmt.Errorf("unmarshal status changed: %w", err)
	}
	return event, nil
}

func headerValue(headers []*sarama.RecordHeader, key string) (string, bool) {
	for _, h := range headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
