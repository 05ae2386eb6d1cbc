package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type timelineDoc struct {
	OrderID  string    `bson:"orderId"`
	Type     string    `bson:"type"`
	From     string    `bson:"from,omitempty"`
	To       string    `bson:"to,omitempty"`
	ActorID  string    `bson:"actorId,omitempty"`
	Reason   string    `bson:"reason,omitempty"`
	Occurred time.Time `bson:"occurred"`
}

type timelineRepository struct {
	events *mongo.Collection
}

// NewTimelineRepository создаёт MongoDB-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{events: store.Database().Collection(colTimeline)}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	_, err := r.events.InsertOne(ctx, timelineDoc{
		OrderID: event.OrderID, Type: event.Type, From: string(event.From), To: string(event.To),
		ActorID: event.ActorID, Reason: event.Reason, Occurred: event.Occurred,
	})
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "occurred", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.events.Find(ctx, bson.M{"orderId": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []timelineDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, domain.TimelineEvent{
			OrderID: d.OrderID, Type: d.Type, From: domain.OrderStatus(d.From), To: domain.OrderStatus(d.To),
			ActorID: d.ActorID, Reason: d.Reason, Occurred: d.Occurred.UTC(),
		})
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
