package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный топик.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// Publish отправляет событие, ключом служит идентификатор заказа.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	env := NewEnvelope(event, p.now())
	header := sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.EventType)}
	return p.producer.PublishEvent(ctx, p.topic, env.Key(), env, header)
}

// Topic возвращает топик назначения.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
