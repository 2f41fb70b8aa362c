package reconcile

import (
	"testing"

	"cajadiaria/backend/internal/domain"
)

func TestDeliveryLunchOrderLandsInOneBucket(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceDeliveryLunch, "o1", map[string]any{"total": 13000, "status": "pendiente"}))

	got := agg.Categories()
	if got.DeliveryLunch != 13000 {
		t.Fatalf("expected domicilioAlmuerzo 13000, got %d", got.DeliveryLunch)
	}
	if got.Total() != 13000 {
		t.Fatalf("expected total 13000, got %d", got.Total())
	}
	for _, category := range domain.AllCategories {
		if category != domain.CategoryDeliveryLunch && got.Get(category) != 0 {
			t.Fatalf("expected %s to be 0, got %d", category, got.Get(category))
		}
	}
}

func TestMixedBreakfastOrderIsProratedByItemCount(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceSalonBreakfast, "b1", map[string]any{
		"total": 21000,
		"breakfasts": []any{
			map[string]any{"orderType": "table"},
			map[string]any{"orderType": "table"},
			map[string]any{"orderType": "takeaway"},
		},
	}))

	got := agg.Categories()
	if got.DineInBreakfast != 14000 || got.TakeawayBreakfast != 7000 {
		t.Fatalf("expected 14000/7000 split, got mesa=%d llevar=%d", got.DineInBreakfast, got.TakeawayBreakfast)
	}
	if got.Total() != 21000 {
		t.Fatalf("expected shares to add up to 21000, got %d", got.Total())
	}
}

func TestProrationRoundsWithoutLosingPesos(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceTableOrders, "b2", map[string]any{
		"total": 10000,
		"breakfasts": []any{
			map[string]any{"orderType": "mesa"},
			map[string]any{"orderType": "mesa"},
			map[string]any{"orderType": "llevar"},
		},
	}))

	got := agg.Categories()
	if got.DineInBreakfast != 6667 || got.TakeawayBreakfast != 3333 {
		t.Fatalf("expected 6667/3333, got %d/%d", got.DineInBreakfast, got.TakeawayBreakfast)
	}
}

func TestUnlabelledItemsFallToOrderChannel(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceWaiterOrders, "b3", map[string]any{
		"total":     9000,
		"orderType": "llevar",
		"breakfasts": []any{
			map[string]any{"orderType": "mesa"},
			map[string]any{},
			map[string]any{},
		},
	}))

	got := agg.Categories()
	if got.DineInBreakfast != 3000 || got.TakeawayBreakfast != 6000 {
		t.Fatalf("expected remainder on takeaway, got mesa=%d llevar=%d", got.DineInBreakfast, got.TakeawayBreakfast)
	}
}

func TestDeliverySourceNeverSplits(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceDeliveryBreakfast, "d1", map[string]any{
		"total":      8000,
		"breakfasts": []any{map[string]any{"orderType": "mesa"}},
	}))

	got := agg.Categories()
	if got.DeliveryBreakfast != 8000 || got.DineInBreakfast != 0 {
		t.Fatalf("expected whole order on domicilioDesayuno, got %+v", got)
	}
}

func TestBucketsSumToIncludedOrderTotals(t *testing.T) {
	orders := []domain.Document{
		doc(domain.SourceDeliveryLunch, "1", map[string]any{"total": 13000}),
		doc(domain.SourceTableOrders, "2", map[string]any{"total": "15.500", "orderType": "llevar"}),
		doc(domain.SourceWaiterOrders, "3", map[string]any{"total": 7300.4, "tableNumber": 2}),
		doc(domain.SourceSalonBreakfast, "4", map[string]any{"total": 10000, "breakfasts": []any{
			map[string]any{"orderType": "mesa"}, map[string]any{"orderType": "llevar"}, map[string]any{"orderType": "llevar"},
		}}),
		doc(domain.SourceDeliveryBreakfast, "5", map[string]any{"total": 9100}),
		doc(domain.SourceTableOrders, "6", map[string]any{"total": 0}),
		doc(domain.SourceTableOrders, "7", map[string]any{"total": "-400"}),
		doc(domain.SourceTableOrders, "8", map[string]any{"total": 5000, "status": "Cancelado"}),
	}

	agg := NewAggregator(nil)
	var want int64
	for _, o := range orders {
		if _, ok := agg.Add(o); ok {
			want += Amount(o.Fields["total"])
		}
	}
	if agg.Included() != 5 {
		t.Fatalf("expected 5 included orders, got %d", agg.Included())
	}
	if got := agg.Categories().Total(); got != want {
		t.Fatalf("expected buckets to sum to %d, got %d", want, got)
	}
}

func TestCancellingAnOrderOnlyRemovesItsOwnContribution(t *testing.T) {
	build := func(cancelled bool) domain.Categories {
		status := "pendiente"
		if cancelled {
			status = "cancelado"
		}
		agg := NewAggregator(nil)
		agg.Add(doc(domain.SourceDeliveryLunch, "1", map[string]any{"total": 13000}))
		agg.Add(doc(domain.SourceTableOrders, "2", map[string]any{"total": 8000, "orderType": "llevar", "status": status}))
		agg.Add(doc(domain.SourceSalonBreakfast, "3", map[string]any{"total": 6000}))
		return agg.Categories()
	}

	before := build(false)
	after := build(true)
	for _, category := range domain.AllCategories {
		diff := before.Get(category) - after.Get(category)
		if category == domain.CategoryTakeawayLunch {
			if diff != 8000 {
				t.Fatalf("expected llevarAlmuerzo to drop by 8000, got %d", diff)
			}
			continue
		}
		if diff != 0 {
			t.Fatalf("expected %s unchanged, changed by %d", category, diff)
		}
	}
}

func TestLiquidatedCountsOnlySettledDelivery(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Add(doc(domain.SourceDeliveryLunch, "1", map[string]any{"total": 13000}))
	agg.Add(doc(domain.SourceTableOrders, "2", map[string]any{"total": 5000}))
	if got := agg.Liquidated(); got != 5000 {
		t.Fatalf("expected liquidated 5000, got %d", got)
	}

	agg.Add(doc(domain.SourceDeliveryLunch, "3", map[string]any{"total": 4000, "paymentSettled": map[string]any{"nequi": true}}))
	agg.Add(doc(domain.SourceDeliveryBreakfast, "4", map[string]any{"total": 2000, "settled": true}))
	if got := agg.Liquidated(); got != 11000 {
		t.Fatalf("expected liquidated 11000, got %d", got)
	}
}
