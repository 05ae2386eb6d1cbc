package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/sales"
)

const kafkaClientID = "storefront"

// runtimeMessaging - подключения к Kafka. Все поля nil, если Kafka не настроена.
type runtimeMessaging struct {
	producer     *kafka.Producer
	probe        *kafka.ClusterProbe
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
}

// initMessaging подключает producer. Недоступная Kafka не останавливает
// сервис: события копятся в outbox до следующего запуска.
func initMessaging(cfg Config, logger *log.Entry) *runtimeMessaging {
	m := &runtimeMessaging{}
	if !cfg.KafkaEnabled() {
		logger.Info("kafka is not configured, outbox events stay pending")
		return m
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafkaClientID, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return m
	}
	m.producer = producer
	m.publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
	m.dlqPublisher = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)

	probe, err := kafka.NewClusterProbe(cfg.KafkaBrokers, kafkaClientID+"-probe")
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka health probe")
	} else {
		m.probe = probe
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return m
}

// enabled сообщает, что producer подключён.
func (m *runtimeMessaging) enabled() bool { return m != nil && m.producer != nil }

func (m *runtimeMessaging) close(logger *log.Entry) {
	if m == nil {
		return
	}
	if m.probe != nil {
		if err := m.probe.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka probe")
		}
	}
	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}
}

// newSalesConsumer подписывает проекцию продаж на события заказов.
func newSalesConsumer(cfg Config, projector *sales.Projector, m *runtimeMessaging, logger *log.Entry) (*kafka.Consumer, error) {
	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(logger.WithField("component", "sales-consumer"))}
	if m.enabled() {
		opts = append(opts, kafka.WithDLQ(m.producer, cfg.KafkaDLQTopic))
	}
	return kafka.NewConsumer(cfg.KafkaBrokers, cfg.SalesConsumerGroup, []string{cfg.KafkaTopic}, projector.MessageHandler(), opts...)
}
