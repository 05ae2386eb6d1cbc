package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCartToggle(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())

	if err := cart.Toggle("p-1", 0); err != nil {
		t.Fatalf("toggle add failed: %v", err)
	}
	if !cart.Has("p-1") || cart.Items[0].Quantity != 1 {
		t.Fatalf("expected p-1 with default quantity 1, got %+v", cart.Items)
	}

	if err := cart.Toggle("p-2", 3); err != nil {
		t.Fatalf("toggle add failed: %v", err)
	}

	// Повторное добавление убирает товар, а не увеличивает количество.
	if err := cart.Toggle("p-1", 5); err != nil {
		t.Fatalf("toggle remove failed: %v", err)
	}
	if cart.Has("p-1") {
		t.Fatal("expected p-1 to be removed by second toggle")
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "p-2" || cart.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", cart.Items)
	}

	if err := cart.Toggle("p-3", -1); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
}

func TestCartToggleNeverDuplicates(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())
	for i := 0; i < 7; i++ {
		_ = cart.Toggle("p-1", 1)
	}
	count := 0
	for _, item := range cart.Items {
		if item.ProductID == "p-1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("odd number of toggles must leave exactly one entry, got %d", count)
	}
}

func TestCartUpdateQuantity(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())
	_ = cart.Toggle("p-1", 1)

	cases := []struct {
		name      string
		productID string
		qty       int
		wantErr   error
	}{
		{name: "valid", productID: "p-1", qty: 4},
		{name: "zero rejected", productID: "p-1", qty: 0, wantErr: domain.ErrQuantityInvalid},
		{name: "negative rejected", productID: "p-1", qty: -3, wantErr: domain.ErrQuantityInvalid},
		{name: "missing item", productID: "p-9", qty: 2, wantErr: domain.ErrCartItemNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := cart.UpdateQuantity(tc.productID, tc.qty)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	if cart.Items[0].Quantity != 4 {
		t.Fatalf("rejected updates must not change quantity, got %d", cart.Items[0].Quantity)
	}
}

func TestCartRemoveIsIdempotent(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())
	_ = cart.Toggle("p-1", 1)
	_ = cart.Toggle("p-2", 1)

	cart.Remove("p-1")
	cart.Remove("p-1")
	cart.Remove("never-added")

	if len(cart.Items) != 1 || cart.Items[0].ProductID != "p-2" {
		t.Fatalf("unexpected items: %+v", cart.Items)
	}

	cart.Clear()
	if len(cart.Items) != 0 || cart.Items == nil {
		t.Fatalf("expected empty non-nil items after clear, got %#v", cart.Items)
	}
}

func TestCartCloneDetachesItems(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())
	_ = cart.Toggle("p-1", 1)

	clone := cart.Clone()
	clone.Items[0].Quantity = 10

	if cart.Items[0].Quantity != 1 {
		t.Fatal("clone must not share items with the original")
	}
}

func TestResolveCartMarksDeletedProducts(t *testing.T) {
	cart := domain.NewCart("user-1", time.Now())
	_ = cart.Toggle("p-1", 2)
	_ = cart.Toggle("gone", 1)
	_ = cart.Toggle("p-2", 1)

	lines := domain.ResolveCart(cart, map[string]domain.Product{
		"p-1": {ID: "p-1", Price: 1000, Discount: 10},
		"p-2": {ID: "p-2", Price: 500},
	})

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !lines[1].Ref.IsDeleted() || lines[1].Ref.ID != "gone" {
		t.Fatalf("expected deleted ref with original id, got %+v", lines[1].Ref)
	}
	if lines[0].Ref.IsDeleted() {
		t.Fatal("p-1 must be resolved")
	}

	summary := domain.SummarizeLines(lines)
	if !almostEqual(summary.Amount, 2300) || summary.Items != 3 {
		t.Fatalf("expected 2300/3, got %v/%d", summary.Amount, summary.Items)
	}
}
