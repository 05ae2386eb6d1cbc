package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// OffsetClient - часть sarama.Client, нужная для обхода партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionReader читает одну партицию.
type PartitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиций.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionReader, error)
}

// SaramaPartitionSource адаптирует sarama.Consumer к PartitionSource.
type SaramaPartitionSource struct {
	Consumer sarama.Consumer
}

// ConsumePartition открывает партицию.
func (s SaramaPartitionSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionReader, error) {
	pc, err := s.Consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ReplayConfig - параметры переотправки из DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	// Execute=false - только показать кандидатов (dry-run).
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// Validate проверяет параметры.
func (c ReplayConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.SourceTopic) == "":
		return errors.New("source-topic is required")
	case strings.TrimSpace(c.TargetTopic) == "":
		return errors.New("target-topic is required")
	case c.Limit <= 0:
		return errors.New("limit must be > 0")
	case c.IdleTimeout <= 0:
		return errors.New("idle-timeout must be > 0")
	}
	return nil
}

// ReplayStats - итог прохода.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer переотправляет сообщения из dead-letter топика в рабочий.
type Replayer struct {
	cfg      ReplayConfig
	client   OffsetClient
	source   PartitionSource
	producer *Producer
	logger   *log.Entry
}

// NewReplayer проверяет зависимости. producer обязателен только в режиме Execute.
func NewReplayer(cfg ReplayConfig, client OffsetClient, source PartitionSource, producer *Producer, logger *log.Entry) (*Replayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil || source == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.Execute && producer == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{cfg: cfg, client: client, source: source, producer: producer, logger: logger}, nil
}

// Run обходит партиции по возрастанию номера, пока не наберётся Limit сообщений.
func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats

	partitions, err := r.client.Partitions(r.cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= r.cfg.Limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.cfg.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(r.cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.FromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	reader, err := r.source.ConsumePartition(r.cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(r.cfg.IdleTimeout)
	defer idle.Stop()
	errs := reader.Errors()

	// Сообщения, появившиеся после старта прохода, не трогаем.
	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cErr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.IdleTimeout)

			if err := r.replayMessage(ctx, msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *Replayer) replayMessage(ctx context.Context, msg *sarama.ConsumerMessage, stats *ReplayStats) error {
	stats.Processed++
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	out, ok, err := ExtractReplayMessage(msg, r.cfg.TargetTopic)
	if err != nil {
		stats.Skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.Skipped++
		return nil
	}

	if !r.cfg.Execute {
		entry.WithFields(log.Fields{"target_topic": out.Topic}).Info("dlq replay candidate")
		stats.Replayed++
		return nil
	}
	if err := r.producer.Send(ctx, out); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	stats.Replayed++
	return nil
}

// outboxDLQRecord - формат, в котором outbox worker кладёт событие в DLQ.
type outboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// ExtractReplayMessage восстанавливает исходное сообщение из записи DLQ.
// Поддерживаются записи consumer'а и outbox worker'а; прочие пропускаются (ok=false).
func ExtractReplayMessage(msg *sarama.ConsumerMessage, defaultTopic string) (*sarama.ProducerMessage, bool, error) {
	var consumerRecord ConsumerDLQRecord
	if err := json.Unmarshal(msg.Value, &consumerRecord); err == nil && consumerRecord.OriginalValue != "" {
		return replayProducerMessage(
			firstNonEmpty(consumerRecord.OriginalTopic, defaultTopic),
			consumerRecord.OriginalKey,
			[]byte(consumerRecord.OriginalValue),
		), true, nil
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || len(env.Payload) == 0 {
		return nil, false, nil
	}

	var record outboxDLQRecord
	if err := json.Unmarshal(env.Payload, &record); err != nil {
		return nil, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(record.Payload) == 0 {
		return nil, false, errors.New("outbox dlq payload does not contain original event payload")
	}

	original := Envelope{
		ID:            firstNonEmpty(record.OutboxID, env.ID),
		AggregateType: firstNonEmpty(record.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(record.EventType, env.EventType),
		Payload:       record.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		return nil, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	out := replayProducerMessage(defaultTopic, original.Key(), encoded)
	out.Headers = append(out.Headers, sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(original.EventType)})
	return out, true, nil
}

func replayProducerMessage(topic, key string, value []byte) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{{Key: []byte(HeaderReplayed), Value: []byte("true")}},
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
