package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(id, tracking, reference string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:               id,
		TrackingID:       tracking,
		UserID:           "user-1",
		Status:           domain.OrderStatusProcessing,
		PaymentMethod:    domain.PaymentMethodGateway,
		PaymentReference: reference,
		TotalAmount:      500,
		Items: []domain.OrderLineItem{
			{ProductID: "p-1", Name: "Oud", Quantity: 5, ListPrice: 100, Price: 100},
		},
		Shipment: domain.ShipmentInfo{
			Name: "Ada", Address: "1 Main St", City: "Lagos", PhoneNumber: "08012345678", Email: "ada@example.com",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	order := newOrder("order-1", "100000000001", "ref-1")

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}

	byTracking, err := repo.GetByTrackingID(ctx, order.TrackingID)
	if err != nil {
		t.Fatalf("get by tracking failed: %v", err)
	}
	if byTracking.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, byTracking.ID)
	}

	if _, err := repo.GetByTrackingID(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_UniqueConstraints(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newOrder("order-1", "100000000001", "ref-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cases := []struct {
		name  string
		order domain.Order
		want  error
	}{
		{name: "same id", order: newOrder("order-1", "100000000002", ""), want: domain.ErrOrderExists},
		{name: "same tracking", order: newOrder("order-2", "100000000001", ""), want: domain.ErrTrackingIDConflict},
		{name: "same reference", order: newOrder("order-3", "100000000003", "ref-1"), want: domain.ErrDuplicatePaymentReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := repo.Create(ctx, tc.order); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Пустая платёжная ссылка не участвует в уникальности (оплата при получении).
	if err := repo.Create(ctx, newOrder("order-4", "100000000004", "")); err != nil {
		t.Fatalf("create without reference failed: %v", err)
	}
	if err := repo.Create(ctx, newOrder("order-5", "100000000005", "")); err != nil {
		t.Fatalf("second create without reference failed: %v", err)
	}
}

func TestOrderRepository_ListFiltersAndPaginates(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, userID := range []string{"user-1", "user-1", "user-2"} {
		order := newOrder("order-"+string(rune('a'+i)), "10000000000"+string(rune('1'+i)), "")
		order.UserID = userID
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 1 {
			order.Status = domain.OrderStatusShipped
		}
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	own, err := repo.List(ctx, domain.OrderFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if own.TotalCount != 2 || len(own.Orders) != 2 {
		t.Fatalf("expected 2 own orders, got total=%d len=%d", own.TotalCount, len(own.Orders))
	}
	if own.Orders[0].ID != "order-b" {
		t.Fatalf("expected newest first, got %s", own.Orders[0].ID)
	}

	all, err := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusProcessing, Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if all.TotalCount != 2 || len(all.Orders) != 1 {
		t.Fatalf("expected total=2 len=1, got total=%d len=%d", all.TotalCount, len(all.Orders))
	}

	beyond, err := repo.List(ctx, domain.OrderFilter{Page: 5, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(beyond.Orders) != 0 || beyond.TotalCount != 3 {
		t.Fatalf("expected empty page with total 3, got total=%d len=%d", beyond.TotalCount, len(beyond.Orders))
	}
}

func TestOrderRepository_Save(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	order := newOrder("order-1", "100000000001", "")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	stored.Status = domain.OrderStatusShipped
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("expected status shipped, got %s", updated.Status)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	order := newOrder("order-1", "100000000001", "")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Version = 42
	if err := repo.Save(ctx, order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict error, got %v", err)
	}
}

func TestOrderRepository_DeleteReleasesUniqueKeys(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	order := newOrder("order-1", "100000000001", "ref-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := repo.Create(ctx, newOrder("order-2", "100000000001", "ref-1")); err != nil {
		t.Fatalf("expected keys to be released, got %v", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ReturnsDetachedCopies(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	order := newOrder("order-1", "100000000001", "")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Items[0].Price = 1
	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Items[0].Price != 100 {
		t.Fatalf("stored snapshot must not change, got price %v", stored.Items[0].Price)
	}
}
