package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

type outboxDoc struct {
	ID            string    `bson:"_id"`
	AggregateType string    `bson:"aggregateType"`
	AggregateID   string    `bson:"aggregateId"`
	EventType     string    `bson:"eventType"`
	Payload       []byte    `bson:"payload"`
	Status        string    `bson:"status"`
	AttemptCount  int       `bson:"attemptCount"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

type outboxRepository struct {
	messages *mongo.Collection
}

// NewOutboxRepository создаёт MongoDB-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{messages: store.Database().Collection(colOutbox)}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err := r.messages.InsertOne(ctx, outboxDoc{
		ID: msg.ID, AggregateType: msg.AggregateType, AggregateID: msg.AggregateID,
		EventType: msg.EventType, Payload: msg.Payload, Status: outboxPending,
		CreatedAt: msg.CreatedAt, UpdatedAt: now,
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.messages.Find(ctx, bson.M{"status": outboxPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []outboxDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(docs))
	for _, d := range docs {
		result = append(result, domain.OutboxMessage{
			ID: d.ID, AggregateType: d.AggregateType, AggregateID: d.AggregateID,
			EventType: d.EventType, Payload: d.Payload, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"status": outboxPending}
	count, err := r.messages.CountDocuments(ctx, filter)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats count failed: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: int(count)}
	if count == 0 {
		return stats, nil
	}

	var oldest outboxDoc
	err = r.messages.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})).Decode(&oldest)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats oldest failed: %w", err)
	}
	stats.OldestPendingAt = oldest.CreatedAt.UTC()
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxFailed)
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.messages.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()},
		"$inc": bson.M{"attemptCount": 1},
	})
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
