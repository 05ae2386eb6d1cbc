package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
)

var errNoBrokers = errors.New("kafka cluster has no reachable brokers")

// ClusterProbe держит отдельный клиент для проверки доступности кластера.
type ClusterProbe struct {
	client sarama.Client
}

// NewClusterProbe подключается к брокерам с минимальными повторами.
func NewClusterProbe(brokers []string, clientID string) (*ClusterProbe, error) {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Metadata.Retry.Max = 0
	config.Metadata.Full = false

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka probe client: %w", err)
	}
	return &ClusterProbe{client: client}, nil
}

// Ping обновляет метаданные кластера.
func (p *ClusterProbe) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return fmt.Errorf("refresh kafka metadata: %w", err)
	}
	if len(p.client.Brokers()) == 0 {
		return errNoBrokers
	}
	return nil
}

// Close закрывает клиент.
func (p *ClusterProbe) Close() error {
	return p.client.Close()
}
