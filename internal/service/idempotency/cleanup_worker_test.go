package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCleanupWorkerDeletesExpiredInBatches(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := repo.CreateProcessing(ctx, fmt.Sprintf("u-1:expired-%d", i), "hash", now.Add(time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "u-1:fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	_, err = repo.Get(ctx, "u-1:fresh")
	assert.NoError(t, err)
}

func TestCleanupWorkerCountsBatchCalls(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{2, 2, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)
	assert.Equal(t, 3, repo.calls())
}

func TestCleanupWorkerReturnsPartialTotalOnError(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{10}, deleteErrors: []error{nil, errors.New("boom")}}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, 10, deleted)
}

func TestCleanupWorkerRunOnceSwallowsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewCleanupWorker(&stubCleanupRepo{})
	assert.Zero(t, worker.RunOnce(ctx))
}

func TestCleanupWorkerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
	assert.Positive(t, repo.calls())
}

// stubCleanupRepo реализует только DeleteExpired.
type stubCleanupRepo struct {
	domain.IdempotencyRepository

	mu            sync.Mutex
	deleteResults []int
	deleteErrors  []error
	callCount     int
}

func (s *stubCleanupRepo) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
