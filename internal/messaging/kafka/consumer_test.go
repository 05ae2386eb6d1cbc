package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error { return m.errorsCh }

func (m *mockConsumerGroup) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return nil
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return "topic" }
func (m *mockClaim) Partition() int32                         { return 0 }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func claimWith(msgs ...*sarama.ConsumerMessage) *mockClaim {
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage, len(msgs))}
	for _, m := range msgs {
		claim.messages <- m
	}
	close(claim.messages)
	return claim
}

func testConsumer(handler MessageHandler, opts ...ConsumerOption) *Consumer {
	opts = append([]ConsumerOption{WithRetryDelay(0), WithConsumerLogger(log.WithField("test", "consumer"))}, opts...)
	return newConsumerWithGroup(&mockConsumerGroup{}, []string{"topic"}, handler, opts...)
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumeCalls := 0
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(context.Context, []string, sarama.ConsumerGroupHandler) error {
			consumeCalls++
			cancel()
			return nil
		},
	}

	consumer := newConsumerWithGroup(group, []string{"topic-a"}, func(context.Context, *sarama.ConsumerMessage) error { return nil })
	errorsCh <- errors.New("background error")

	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, consumer.Stop())
	assert.Positive(t, consumeCalls)
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	group := &mockConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := newConsumerWithGroup(group, nil, nil)
	require.Error(t, consumer.Stop())
}

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })
	session := &mockSession{ctx: context.Background()}

	err := consumer.ConsumeClaim(session, claimWith(&sarama.ConsumerMessage{Topic: "topic", Offset: 1}))
	require.NoError(t, err)
	assert.Len(t, session.marked, 1)
}

func TestConsumeClaimRetriesThenLeavesUnmarked(t *testing.T) {
	attempts := 0
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error {
		attempts++
		return errors.New("failed")
	}, WithMaxRetries(2))
	session := &mockSession{ctx: context.Background()}

	err := consumer.ConsumeClaim(session, claimWith(&sarama.ConsumerMessage{Topic: "topic", Offset: 1}))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Empty(t, session.marked, "failed message without DLQ is not marked")
}

func TestConsumeClaimRecoversOnRetry(t *testing.T) {
	attempts := 0
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	session := &mockSession{ctx: context.Background()}

	require.NoError(t, consumer.ConsumeClaim(session, claimWith(&sarama.ConsumerMessage{Topic: "topic"})))
	assert.Equal(t, 2, attempts)
	assert.Len(t, session.marked, 1)
}

func TestHandleMessageCountsPriorRetries(t *testing.T) {
	attempts := 0
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error {
		attempts++
		return errors.New("permanent")
	}, WithMaxRetries(3))

	msg := &sarama.ConsumerMessage{
		Topic:   "topic",
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("5")}},
	}
	require.Error(t, consumer.handleMessage(context.Background(), msg))
	assert.Equal(t, 1, attempts)
}

func TestHandleMessageSendsToDLQ(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "custom.dlq" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var record ConsumerDLQRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if record.OriginalTopic != "orders" || record.OriginalValue != `{"a":1}` || record.RetryCount != 2 {
			return errors.New("unexpected dlq record")
		}
		return nil
	})

	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
		WithMaxRetries(1),
		WithDLQ(NewProducerWithSync(mock, nil), "custom.dlq"),
	)
	session := &mockSession{ctx: context.Background()}

	msg := &sarama.ConsumerMessage{Topic: "orders", Partition: 1, Offset: 42, Key: []byte("k"), Value: []byte(`{"a":1}`)}
	require.NoError(t, consumer.ConsumeClaim(session, claimWith(msg)))
	assert.Len(t, session.marked, 1, "message parked in DLQ is marked")
	require.NoError(t, mock.Close())
}

func TestHandleMessageDLQFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
		WithMaxRetries(0),
		WithDLQ(NewProducerWithSync(mock, nil), ""),
	)
	err := consumer.handleMessage(context.Background(), &sarama.ConsumerMessage{Topic: "orders"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mock.Close())
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}

func TestRetryCountHeader(t *testing.T) {
	assert.Equal(t, 5, retryCount(&sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("5")}}}))
	assert.Zero(t, retryCount(&sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("bad")}}}))
	assert.Zero(t, retryCount(&sarama.ConsumerMessage{}))
}

func TestEnvelopeHandlerSkipsMalformed(t *testing.T) {
	var seen []string
	handler := EnvelopeHandler(nil, func(_ context.Context, env Envelope) error {
		seen = append(seen, env.EventType)
		return nil
	})

	require.NoError(t, handler(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}))
	require.NoError(t, handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"id":"e-1","event_type":"order.placed","payload":{}}`)}))
	assert.Equal(t, []string{"order.placed"}, seen)
}
