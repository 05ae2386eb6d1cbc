package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func enqueue(t *testing.T, repo domain.OutboxRepository, aggregateID string) domain.OutboxMessage {
	t.Helper()

	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   aggregateID,
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":"` + aggregateID + `"}`),
	})
	require.NoError(t, err)
	return msg
}

func TestWorkerProcessOnceMarksSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order-1")
	enqueue(t, repo, "order-2")
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	assert.Empty(t, repo.AllPending())
	assert.Equal(t, 2, publisher.calls())
	assert.Equal(t, []string{"order-1", "order-2"}, publisher.aggregateIDs())
}

func TestWorkerProcessOnceSendsToDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := enqueue(t, repo, "order-3")
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())
	assert.Empty(t, repo.AllPending(), "failed message must leave the pending backlog")

	var envelope DLQEnvelope
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	assert.Equal(t, msg.ID, envelope.OutboxID)
	assert.Equal(t, domain.EventOrderPlaced, envelope.EventType)
	assert.JSONEq(t, `{"order_id":"order-3"}`, string(envelope.Payload))
	assert.Contains(t, envelope.PublishError, "broker down")
}

func TestWorkerProcessOnceSucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order-4")
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.AllPending())
}

func TestWorkerRespectsBatchSize(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for _, id := range []string{"a", "b", "c"} {
		enqueue(t, repo, id)
	}
	worker := NewWorker(repo, &stubPublisher{}, WithBatchSize(2), WithRetryBaseDelay(0))

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	assert.Len(t, repo.AllPending(), 1)
}

func TestWorkerKeepsPendingOnShutdown(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order-5")

	ctx, cancel := context.WithCancel(context.Background())
	publisher := &stubPublisher{err: errors.New("broker down"), onPublish: cancel}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour), WithMaxAttempts(3))

	worker.ProcessOnce(ctx)

	assert.Len(t, repo.AllPending(), 1)
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(memory.NewOutboxRepository(), &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestRetryBackoff(t *testing.T) {
	assert.Zero(t, retryBackoff(0, 3))
	assert.Equal(t, 10*time.Millisecond, retryBackoff(10*time.Millisecond, 1))
	assert.Equal(t, 40*time.Millisecond, retryBackoff(10*time.Millisecond, 3))
	assert.Equal(t, maxRetryDelay, retryBackoff(time.Second, 64))
}

func TestBacklogAge(t *testing.T) {
	now := time.Now()
	assert.Zero(t, backlogAge(domain.OutboxStats{}, now))
	assert.InDelta(t, 5, backlogAge(domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-5 * time.Second)}, now), 0.001)
	assert.Zero(t, backlogAge(domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(time.Minute)}, now))
}

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	events    []domain.OutboxMessage
	onPublish func()
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequence) > 0 {
		err := s.sequence[0]
		s.sequence = s.sequence[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *stubPublisher) aggregateIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.events))
	for _, e := range s.events {
		ids = append(ids, e.AggregateID)
	}
	return ids
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
