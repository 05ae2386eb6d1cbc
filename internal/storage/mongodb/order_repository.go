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

type orderItemDoc struct {
	ProductID string  `bson:"productId"`
	Name      string  `bson:"name"`
	Quantity  int     `bson:"quantity"`
	ListPrice float64 `bson:"listPrice"`
	Discount  float64 `bson:"discount"`
	Price     float64 `bson:"price"`
}

type shipmentDoc struct {
	Name        string `bson:"name"`
	Address     string `bson:"address"`
	City        string `bson:"city"`
	PhoneNumber string `bson:"phoneNumber"`
	Email       string `bson:"email"`
}

type orderDoc struct {
	ID            string         `bson:"_id"`
	TrackingID    string         `bson:"trackingId"`
	UserID        string         `bson:"userId"`
	Items         []orderItemDoc `bson:"items"`
	TotalAmount   float64        `bson:"totalAmount"`
	Status        string         `bson:"status"`
	PaymentMethod string         `bson:"paymentMethod"`
	// omitempty: у оплаты наличными ссылки нет и частичный уникальный индекс её не видит.
	PaymentReference string      `bson:"paymentReference,omitempty"`
	Shipment         shipmentDoc `bson:"shipmentInfo"`
	Version          int64       `bson:"version"`
	CreatedAt        time.Time   `bson:"createdAt"`
	UpdatedAt        time.Time   `bson:"updatedAt"`
}

func orderToDoc(o domain.Order) orderDoc {
	items := make([]orderItemDoc, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDoc(it))
	}
	return orderDoc{
		ID: o.ID, TrackingID: o.TrackingID, UserID: o.UserID, Items: items, TotalAmount: o.TotalAmount,
		Status: string(o.Status), PaymentMethod: string(o.PaymentMethod), PaymentReference: o.PaymentReference,
		Shipment: shipmentDoc(o.Shipment), Version: o.Version, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

func (d orderDoc) toDomain() domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.OrderLineItem(it))
	}
	return domain.Order{
		ID: d.ID, TrackingID: d.TrackingID, UserID: d.UserID, Items: items, TotalAmount: d.TotalAmount,
		Status: domain.OrderStatus(d.Status), PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentReference: d.PaymentReference, Shipment: domain.ShipmentInfo(d.Shipment),
		Version: d.Version, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type orderRepository struct {
	orders *mongo.Collection
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{orders: store.Database().Collection(colOrders)}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.orders.InsertOne(ctx, orderToDoc(order)); err != nil {
		if index, ok := duplicateIndex(err); ok {
			switch index {
			case idxOrderReference:
				return domain.ErrDuplicatePaymentReference
			case idxOrderTracking:
				return domain.ErrTrackingIDConflict
			default:
				return domain.ErrOrderExists
			}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *orderRepository) GetByTrackingID(ctx context.Context, trackingID string) (domain.Order, error) {
	return r.findOne(ctx, bson.M{"trackingId": trackingID})
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page, limit := domain.NormalizePage(filter.Page, filter.Limit)
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	total, err := r.orders.CountDocuments(ctx, query)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}
	result := domain.OrderPage{TotalCount: int(total), Orders: []domain.Order{}}
	if total == 0 {
		return result, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(domain.PageOffset(page, limit))).
		SetLimit(int64(limit))
	cur, err := r.orders.Find(ctx, query, opts)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer cur.Close(ctx)

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return domain.OrderPage{}, fmt.Errorf("decode orders: %w", err)
	}
	for _, d := range docs {
		result.Orders = append(result.Orders, d.toDomain())
	}
	return result, nil
}

// Save меняет только статус; снимок позиций и сумма остаются как при создании.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": order.ID, "version": order.Version},
		bson.M{
			"$set": bson.M{"status": string(order.Status), "updatedAt": order.UpdatedAt},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := r.orders.CountDocuments(ctx, bson.M{"_id": order.ID})
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if count == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.orders.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) findOne(ctx context.Context, filter bson.M) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDoc
	if err := r.orders.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return doc.toDomain(), nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
