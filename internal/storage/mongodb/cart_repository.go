package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartItemDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int    `bson:"quantity"`
}

type cartDoc struct {
	UserID    string        `bson:"_id"`
	Items     []cartItemDoc `bson:"items"`
	Version   int64         `bson:"version"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d cartDoc) toDomain() domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return domain.Cart{UserID: d.UserID, Items: items, Version: d.Version, UpdatedAt: d.UpdatedAt.UTC()}
}

func cartItemDocs(items []domain.CartItem) []cartItemDoc {
	docs := make([]cartItemDoc, 0, len(items))
	for _, it := range items {
		docs = append(docs, cartItemDoc{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return docs
}

type cartRepository struct {
	carts *mongo.Collection
}

// NewCartRepository создаёт MongoDB-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{carts: store.Database().Collection(colCarts)}
}

// Create вставляет корзину только если её ещё нет ($setOnInsert).
func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}
	_, err := r.carts.UpdateOne(ctx,
		bson.M{"_id": cart.UserID},
		bson.M{"$setOnInsert": bson.M{
			"items":     cartItemDocs(cart.Items),
			"version":   int64(0),
			"updatedAt": cart.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc cartDoc
	if err := r.carts.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("find cart: %w", err)
	}
	return doc.toDomain(), nil
}

// Save заменяет позиции атомарно, только если версия в базе совпадает с прочитанной.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc cartDoc
	err := r.carts.FindOneAndUpdate(ctx,
		bson.M{"_id": cart.UserID, "version": cart.Version},
		bson.M{
			"$set": bson.M{"items": cartItemDocs(cart.Items), "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Cart{}, fmt.Errorf("update cart: %w", err)
	}

	count, err := r.carts.CountDocuments(ctx, bson.M{"_id": cart.UserID})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("check cart exists: %w", err)
	}
	if count == 0 {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return domain.Cart{}, domain.ErrCartVersionConflict
}

var _ domain.CartRepository = (*cartRepository)(nil)
