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
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second

	colProducts    = "products"
	colBrands      = "brands"
	colCategories  = "categories"
	colTags        = "tags"
	colUsers       = "users"
	colCarts       = "carts"
	colOrders      = "orders"
	colTimeline    = "timeline_events"
	colOutbox      = "outbox_messages"
	colIdempotency = "idempotency_keys"

	idxOrderTracking  = "orders_tracking_id_uq"
	idxOrderReference = "orders_payment_reference_uq"
)

// Store оборачивает клиент MongoDB и рабочую базу.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open подключается к MongoDB и проверяет доступность primary.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if strings.TrimSpace(database) == "" {
		return nil, errors.New("mongo database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Database возвращает рабочую базу для низкоуровневого доступа.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Ping проверяет доступность кластера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("mongo store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// EnsureIndexes создаёт индексы уникальности и выборок. Операция идемпотентна.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("mongo store is not initialized")
	}

	unique := func(name string) *options.IndexOptions {
		return options.Index().SetName(name).SetUnique(true)
	}

	specs := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "emailKey", Value: 1}}, Options: unique("users_email_uq")},
		},
		colBrands: {
			{Keys: bson.D{{Key: "nameKey", Value: 1}}, Options: unique("brands_name_uq")},
		},
		colCategories: {
			{Keys: bson.D{{Key: "nameKey", Value: 1}}, Options: unique("categories_name_uq")},
		},
		colTags: {
			{Keys: bson.D{{Key: "nameKey", Value: 1}}, Options: unique("tags_name_uq")},
		},
		colProducts: {
			{Keys: bson.D{{Key: "nameKey", Value: 1}}, Options: options.Index().SetName("products_name_idx")},
			{Keys: bson.D{{Key: "sales", Value: -1}}, Options: options.Index().SetName("products_sales_idx")},
		},
		colOrders: {
			{Keys: bson.D{{Key: "trackingId", Value: 1}}, Options: unique(idxOrderTracking)},
			// Ссылка есть только у онлайн-оплаты, поэтому индекс частичный.
			{
				Keys: bson.D{{Key: "paymentReference", Value: 1}},
				Options: unique(idxOrderReference).
					SetPartialFilterExpression(bson.M{"paymentReference": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("orders_user_created_idx")},
		},
		colTimeline: {
			{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "occurred", Value: 1}}, Options: options.Index().SetName("timeline_order_idx")},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}, Options: options.Index().SetName("outbox_pending_idx")},
		},
		colIdempotency: {
			{Keys: bson.D{{Key: "ttlAt", Value: 1}}, Options: options.Index().SetName("idempotency_ttl_idx")},
		},
	}

	indexCtx, cancel := context.WithTimeout(ctx, 4*opTimeout)
	defer cancel()

	for collection, models := range specs {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(indexCtx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", collection, err)
		}
	}
	return nil
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// duplicateIndex возвращает имя уникального индекса, нарушенного записью.
func duplicateIndex(err error) (string, bool) {
	if !mongo.IsDuplicateKeyError(err) {
		return "", false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if name := indexFromMessage(e.Message); name != "" {
				return name, true
			}
		}
	}
	return indexFromMessage(err.Error()), true
}

// indexFromMessage достаёт имя индекса из "E11000 ... index: <name> dup key".
func indexFromMessage(msg string) string {
	const marker = "index: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	rest := msg[idx+len(marker):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
