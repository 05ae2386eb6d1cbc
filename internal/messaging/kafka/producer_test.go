package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, nil)
	return NewProducerWithSync(mock, log.WithField("component", "kafka-producer-test")), mock
}

func TestProducerPublishEvent(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]string
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["order_id"] != "o-1" {
			return assert.AnError
		}
		return nil
	})

	err := producer.PublishEvent(context.Background(), TopicOrderEvents, "o-1", map[string]string{"order_id": "o-1"})
	require.NoError(t, err)
	require.NoError(t, mock.Close())
}

func TestProducerPublishEventError(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(context.Background(), TopicOrderEvents, "o-1", map[string]string{})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mock.Close())
}

func TestProducerSkipsCanceledContext(t *testing.T) {
	producer, mock := newMockProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := producer.PublishEvent(ctx, TopicOrderEvents, "o-1", map[string]string{})
	require.ErrorIs(t, err, context.Canceled)
	// Ожиданий нет: сообщение не должно уйти в брокер.
	require.NoError(t, mock.Close())
}

func TestOutboxPublisherPublish(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return assert.AnError
		}
		if v, ok := headerFromProducer(msg, HeaderEventType); !ok || v != domain.EventOrderPlaced {
			return assert.AnError
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if env.ID != "outbox-1" || string(env.Payload) != `{"total_amount":2300}` {
			return assert.AnError
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, "")
	assert.Equal(t, TopicOrderEvents, publisher.Topic())

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"total_amount":2300}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.Close())
}

func TestOutboxPublisherProducerError(t *testing.T) {
	producer, mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewOutboxPublisher(producer, TopicOrderEvents).Publish(context.Background(), domain.OutboxMessage{ID: "outbox-2", AggregateID: "order-234"})
	require.Error(t, err)
	require.NoError(t, mock.Close())
}

func TestOutboxPublisherNilProducer(t *testing.T) {
	err := NewOutboxPublisher(nil, TopicOrderEvents).Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"})
	require.ErrorIs(t, err, errPublisherNotInitialized)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	order := domain.Order{
		ID: "o-1", TrackingID: "100000000001", UserID: "u-1", Status: domain.OrderStatusProcessing,
		Items:       []domain.OrderLineItem{{ProductID: "p-1", Quantity: 3, Price: 100}},
		TotalAmount: 300, PaymentMethod: domain.PaymentMethodCash, CreatedAt: time.Now().UTC(),
	}
	msg, err := domain.NewOrderPlacedMessage(order)
	require.NoError(t, err)
	msg.ID = "evt-1"

	raw, err := json.Marshal(NewEnvelope(msg, time.Now()))
	require.NoError(t, err)

	env, err := ParseEnvelope(&sarama.ConsumerMessage{Value: raw})
	require.NoError(t, err)
	assert.Equal(t, "o-1", env.Key())

	placed, err := env.OrderPlaced()
	require.NoError(t, err)
	assert.Equal(t, 3, placed.ItemCount)

	_, err = env.StatusChanged()
	assert.Error(t, err)

	_, err = ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"id":"x"}`)})
	assert.Error(t, err, "event type is mandatory")
}

func TestNewEnvelopeQuotesInvalidPayload(t *testing.T) {
	env := NewEnvelope(domain.OutboxMessage{ID: "evt-1", Payload: []byte("not json")}, time.Now())
	assert.Equal(t, `"not json"`, string(env.Payload))
	assert.Equal(t, "evt-1", env.Key())
}

func headerFromProducer(msg *sarama.ProducerMessage, key string) (string, bool) {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
