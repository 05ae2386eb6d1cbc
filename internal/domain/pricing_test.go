package domain_test

import (
	"math"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEffectivePrice(t *testing.T) {
	cases := []struct {
		name     string
		price    float64
		discount float64
		want     float64
	}{
		{name: "no discount", price: 500, discount: 0, want: 500},
		{name: "ten percent", price: 1000, discount: 10, want: 900},
		{name: "full discount", price: 1000, discount: 100, want: 0},
		{name: "negative discount clamps to zero", price: 80, discount: -5, want: 80},
		{name: "discount above hundred clamps", price: 80, discount: 150, want: 0},
		{name: "fractional", price: 19.99, discount: 25, want: 14.9925},
		{name: "zero price", price: 0, discount: 50, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.EffectivePrice(tc.price, tc.discount)
			if !almostEqual(got, tc.want) {
				t.Fatalf("EffectivePrice(%v, %v) = %v, want %v", tc.price, tc.discount, got, tc.want)
			}
		})
	}
}

func TestEffectivePriceNeverExceedsPrice(t *testing.T) {
	for price := 0.0; price <= 2000; price += 137.5 {
		for discount := 0.0; discount <= 100; discount += 2.5 {
			eff := domain.EffectivePrice(price, discount)
			if eff > price || eff < 0 {
				t.Fatalf("price=%v discount=%v: effective %v out of [0, price]", price, discount, eff)
			}
			if discount == 0 && eff != price {
				t.Fatalf("price=%v: zero discount must keep price, got %v", price, eff)
			}
			if discount > 0 && price > 0 && eff == price {
				t.Fatalf("price=%v discount=%v: positive discount must lower price", price, discount)
			}
		}
	}
}

func TestTotals_Scenario(t *testing.T) {
	summary := domain.Totals([]domain.PriceEntry{
		{Price: 1000, Discount: 10, Quantity: 2},
		{Price: 500, Discount: 0, Quantity: 1},
	})

	if !almostEqual(summary.Amount, 2300) {
		t.Fatalf("expected total 2300, got %v", summary.Amount)
	}
	if summary.Items != 3 {
		t.Fatalf("expected 3 items, got %d", summary.Items)
	}
}

func TestTotals_SkipsMalformedEntries(t *testing.T) {
	summary := domain.Totals([]domain.PriceEntry{
		{Price: 100, Quantity: 1},
		{Price: 999, Quantity: 3, Missing: true},
		{Price: 50, Quantity: 0},
		{Price: 50, Quantity: -2},
	})

	if !almostEqual(summary.Amount, 100) {
		t.Fatalf("expected 100, got %v", summary.Amount)
	}
	if summary.Items != 1 {
		t.Fatalf("expected 1 item, got %d", summary.Items)
	}

	if empty := domain.Totals(nil); empty.Amount != 0 || empty.Items != 0 {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}

func TestLineAmount(t *testing.T) {
	got := domain.LineAmount(domain.PriceEntry{Price: 1000, Discount: 10, Quantity: 2})
	if !almostEqual(got, 1800) {
		t.Fatalf("expected 1800, got %v", got)
	}
}
