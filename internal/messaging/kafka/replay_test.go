package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOffsetClient struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
	err        error
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return s.partitions, s.err
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return s.oldest[partition], nil
	}
	return s.newest[partition], nil
}

type stubReader struct {
	messages chan *sarama.ConsumerMessage
	errs     chan *sarama.ConsumerError
	closed   bool
}

func (r *stubReader) Messages() <-chan *sarama.ConsumerMessage { return r.messages }
func (r *stubReader) Errors() <-chan *sarama.ConsumerError     { return r.errs }
func (r *stubReader) Close() error {
	r.closed = true
	return nil
}

type stubSource struct {
	readers map[int32]*stubReader
	starts  map[int32]int64
}

func (s *stubSource) ConsumePartition(_ string, partition int32, offset int64) (PartitionReader, error) {
	if s.starts == nil {
		s.starts = make(map[int32]int64)
	}
	s.starts[partition] = offset
	reader, ok := s.readers[partition]
	if !ok {
		return nil, errors.New("unknown partition")
	}
	return reader, nil
}

func readerWith(partition int32, values ...[]byte) *stubReader {
	r := &stubReader{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errs:     make(chan *sarama.ConsumerError),
	}
	for i, v := range values {
		r.messages <- &sarama.ConsumerMessage{Partition: partition, Offset: int64(i), Value: v}
	}
	return r
}

func consumerRecord(t *testing.T, value string) []byte {
	t.Helper()
	raw, err := json.Marshal(ConsumerDLQRecord{OriginalTopic: TopicOrderEvents, OriginalKey: "order-1", OriginalValue: value})
	require.NoError(t, err)
	return raw
}

func replayConfig(execute bool) ReplayConfig {
	return ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		TargetTopic: TopicOrderEvents,
		Limit:       10,
		Execute:     execute,
		IdleTimeout: 50 * time.Millisecond,
	}
}

func TestReplayConfigValidate(t *testing.T) {
	cfg := replayConfig(false)
	require.NoError(t, cfg.Validate())

	broken := cfg
	broken.SourceTopic = " "
	require.EqualError(t, broken.Validate(), "source-topic is required")

	broken = cfg
	broken.TargetTopic = ""
	require.EqualError(t, broken.Validate(), "target-topic is required")

	broken = cfg
	broken.Limit = 0
	require.EqualError(t, broken.Validate(), "limit must be > 0")

	broken = cfg
	broken.IdleTimeout = 0
	require.EqualError(t, broken.Validate(), "idle-timeout must be > 0")
}

func TestNewReplayerRequiresProducerForExecute(t *testing.T) {
	_, err := NewReplayer(replayConfig(true), &stubOffsetClient{}, &stubSource{}, nil, nil)
	require.Error(t, err)

	_, err = NewReplayer(replayConfig(false), nil, &stubSource{}, nil, nil)
	require.Error(t, err)

	r, err := NewReplayer(replayConfig(false), &stubOffsetClient{}, &stubSource{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestReplayerDryRunDoesNotPublish(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 2},
	}
	reader := readerWith(0, consumerRecord(t, `{"id":"e-1"}`), []byte("not json"))
	source := &stubSource{readers: map[int32]*stubReader{0: reader}}

	r, err := NewReplayer(replayConfig(false), client, source, nil, nil)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Processed: 2, Replayed: 1, Skipped: 1}, stats)
	assert.True(t, reader.closed)
}

func TestReplayerExecutePublishesAcrossPartitions(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})
	mock.ExpectSendMessageAndSucceed()

	client := &stubOffsetClient{
		partitions: []int32{1, 0},
		oldest:     map[int32]int64{0: 0, 1: 0},
		newest:     map[int32]int64{0: 1, 1: 1},
	}
	source := &stubSource{readers: map[int32]*stubReader{
		0: readerWith(0, consumerRecord(t, `{"id":"e-1"}`)),
		1: readerWith(1, consumerRecord(t, `{"id":"e-2"}`)),
	}}

	r, err := NewReplayer(replayConfig(true), client, source, NewProducerWithSync(mock, nil), nil)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Replayed)
	require.NoError(t, mock.Close())
}

func TestReplayerRespectsLimitAndFromNewest(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 10},
	}
	reader := readerWith(0, consumerRecord(t, `{"id":"e-1"}`), consumerRecord(t, `{"id":"e-2"}`), consumerRecord(t, `{"id":"e-3"}`))
	source := &stubSource{readers: map[int32]*stubReader{0: reader}}

	cfg := replayConfig(false)
	cfg.Limit = 2
	cfg.FromNewest = true

	r, err := NewReplayer(cfg, client, source, nil, nil)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, int64(8), source.starts[0])
}

func TestReplayerSkipsEmptyPartitions(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 5},
		newest:     map[int32]int64{0: 5},
	}
	r, err := NewReplayer(replayConfig(false), client, &stubSource{}, nil, nil)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
}

func TestReplayerPartitionsError(t *testing.T) {
	client := &stubOffsetClient{err: errors.New("metadata unavailable")}
	r, err := NewReplayer(replayConfig(false), client, &stubSource{}, nil, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.ErrorContains(t, err, "metadata unavailable")
}

func TestExtractReplayMessageFromConsumerRecord(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: consumerRecord(t, `{"id":"e-1"}`)}

	out, ok, err := ExtractReplayMessage(msg, "fallback")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TopicOrderEvents, out.Topic)

	value, err := out.Value.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e-1"}`, string(value))
	replayed, ok := headerFromProducer(out, HeaderReplayed)
	assert.True(t, ok)
	assert.Equal(t, "true", replayed)
}

func TestExtractReplayMessageFromOutboxDLQ(t *testing.T) {
	inner, err := json.Marshal(map[string]any{
		"outbox_id":      "evt-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "order.placed",
		"payload":        map[string]any{"order_id": "order-1"},
		"publish_error":  "broker down",
	})
	require.NoError(t, err)
	dlq, err := json.Marshal(Envelope{
		ID:            "dlq-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.placed.dlq",
		Payload:       inner,
	})
	require.NoError(t, err)

	out, ok, err := ExtractReplayMessage(&sarama.ConsumerMessage{Value: dlq}, TopicOrderEvents)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TopicOrderEvents, out.Topic)
	eventType, _ := headerFromProducer(out, HeaderEventType)
	assert.Equal(t, "order.placed", eventType)

	raw, err := out.Value.Encode()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, "order.placed", env.EventType)
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(env.Payload))
}

func TestExtractReplayMessageUnsupported(t *testing.T) {
	_, ok, err := ExtractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, TopicOrderEvents)
	require.NoError(t, err)
	assert.False(t, ok)

	bad, err := json.Marshal(Envelope{ID: "x", EventType: "order.placed.dlq", Payload: json.RawMessage(`{"outbox_id":"x"}`)})
	require.NoError(t, err)
	_, ok, err = ExtractReplayMessage(&sarama.ConsumerMessage{Value: bad}, TopicOrderEvents)
	require.Error(t, err)
	assert.False(t, ok)
}
