package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type idempotencyDoc struct {
	Key          string    `bson:"_id"`
	RequestHash  string    `bson:"requestHash"`
	ResponseBody []byte    `bson:"responseBody,omitempty"`
	HTTPStatus   int       `bson:"httpStatus"`
	Status       string    `bson:"status"`
	TTLAt        time.Time `bson:"ttlAt"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d idempotencyDoc) toDomain() domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key: d.Key, RequestHash: d.RequestHash, ResponseBody: append([]byte(nil), d.ResponseBody...),
		HTTPStatus: d.HTTPStatus, Status: domain.IdempotencyStatus(d.Status),
		TTLAt: d.TTLAt.UTC(), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type idempotencyRepository struct {
	keys *mongo.Collection
}

// NewIdempotencyRepository создаёт MongoDB-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{keys: store.Database().Collection(colIdempotency)}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Истёкший ключ освобождается сразу.
	if _, err := r.keys.DeleteOne(ctx, bson.M{"_id": key, "ttlAt": bson.M{"$lte": now}}); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("release expired idempotency key: %w", err)
	}

	doc := idempotencyDoc{
		Key: key, RequestHash: requestHash, Status: string(domain.IdempotencyStatusProcessing),
		TTLAt: ttlAt, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := r.keys.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, getErr := r.Get(ctx, key)
			if getErr != nil {
				return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
			}
			if existing.RequestHash != requestHash {
				return existing, domain.ErrIdempotencyHashMismatch
			}
			return existing, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}

	return doc.toDomain(), nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc idempotencyDoc
	err := r.keys.FindOne(ctx, bson.M{"_id": key, "ttlAt": bson.M{"$gt": time.Now().UTC()}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record := doc.toDomain()
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", doc.Status, key)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"ttlAt": bson.M{"$lte": before}}
	if limit > 0 {
		// DeleteMany не умеет limit: сначала выбираем самые старые ключи.
		opts := options.Find().
			SetSort(bson.D{{Key: "ttlAt", Value: 1}}).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"_id": 1})
		cur, err := r.keys.Find(ctx, filter, opts)
		if err != nil {
			return 0, fmt.Errorf("select expired idempotency records: %w", err)
		}
		var docs []struct {
			Key string `bson:"_id"`
		}
		if err := cur.All(ctx, &docs); err != nil {
			return 0, fmt.Errorf("decode expired idempotency records: %w", err)
		}
		keys := make([]string, 0, len(docs))
		for _, d := range docs {
			keys = append(keys, d.Key)
		}
		if len(keys) == 0 {
			return 0, nil
		}
		filter = bson.M{"_id": bson.M{"$in": keys}}
	}

	res, err := r.keys.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *idempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.keys.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{
		"responseBody": responseBody,
		"httpStatus":   httpStatus,
		"status":       string(status),
		"updatedAt":    time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
