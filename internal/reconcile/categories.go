package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"cajadiaria/backend/internal/domain"
)

// share is the part of an order's total attributed to one bucket.
type share struct {
	category domain.Category
	channel  domain.Channel
	amount   decimal.Decimal
}

// Aggregator folds classified orders into the six category buckets.
// Amounts are accumulated exactly and only rounded when read.
type Aggregator struct {
	classifier *Classifier
	sums       map[domain.Category]decimal.Decimal
	counts     map[domain.Category]int
	liquidated decimal.Decimal
	included   int
}

func NewAggregator(classifier *Classifier) *Aggregator {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Aggregator{
		classifier: classifier,
		sums:       make(map[domain.Category]decimal.Decimal, len(domain.AllCategories)),
		counts:     make(map[domain.Category]int, len(domain.AllCategories)),
	}
}

// Add records one order and reports whether it contributed revenue.
// Cancelled orders and non-positive totals are ignored.
func (a *Aggregator) Add(doc domain.Document) (Classification, bool) {
	class := a.classifier.Classify(doc)
	if Cancelled(doc.Fields) {
		return class, false
	}
	total, ok := amountDecimal(doc.Fields["total"])
	if !ok || !total.IsPositive() {
		return class, false
	}

	settled := Settled(doc.Fields)
	for _, s := range a.split(doc, class, total) {
		a.sums[s.category] = a.sums[s.category].Add(s.amount)
		if s.channel != domain.ChannelDelivery || settled {
			a.liquidated = a.liquidated.Add(s.amount)
		}
	}
	a.counts[domain.CategoryFor(class.Meal, class.Channel)]++
	a.included++
	return class, true
}

// split prorates orders whose line items name different salon channels.
// Each item counts once; items with no recognisable dine-in or takeaway label
// fall to the order-level channel. Delivery-only collections never split.
func (a *Aggregator) split(doc domain.Document, class Classification, total decimal.Decimal) []share {
	whole := []share{{
		category: domain.CategoryFor(class.Meal, class.Channel),
		channel:  class.Channel,
		amount:   total,
	}}
	if doc.Source.DeliveryOnly() {
		return whole
	}
	items := list(doc.Fields["breakfasts"])
	if len(items) == 0 {
		items = list(doc.Fields["meals"])
	}
	if len(items) == 0 {
		return whole
	}

	var dineIn, takeaway int64
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch channel, _ := ChannelFromLabel(m["orderType"]); channel {
		case domain.ChannelDineIn:
			dineIn++
		case domain.ChannelTakeaway:
			takeaway++
		}
	}
	if dineIn+takeaway == 0 {
		return whole
	}

	n := decimal.NewFromInt(int64(len(items)))
	dineShare := total.Mul(decimal.NewFromInt(dineIn)).Div(n)
	takeShare := total.Mul(decimal.NewFromInt(takeaway)).Div(n)
	rest := total.Sub(dineShare).Sub(takeShare)

	out := make([]share, 0, 3)
	if dineShare.IsPositive() {
		out = append(out, share{domain.CategoryFor(class.Meal, domain.ChannelDineIn), domain.ChannelDineIn, dineShare})
	}
	if takeShare.IsPositive() {
		out = append(out, share{domain.CategoryFor(class.Meal, domain.ChannelTakeaway), domain.ChannelTakeaway, takeShare})
	}
	if !rest.IsZero() {
		out = append(out, share{domain.CategoryFor(class.Meal, class.Channel), class.Channel, rest})
	}
	return out
}

// Categories surfaces the buckets as whole pesos. Rounding uses the largest
// remainder method so the buckets always add up to the rounded grand total.
func (a *Aggregator) Categories() domain.Categories {
	var out domain.Categories
	grand := decimal.Zero
	type frac struct {
		category domain.Category
		rem      decimal.Decimal
	}
	fracs := make([]frac, 0, len(domain.AllCategories))
	var floored int64
	for _, category := range domain.AllCategories {
		sum := a.sums[category]
		grand = grand.Add(sum)
		whole := sum.Floor()
		out.Set(category, whole.IntPart())
		floored += whole.IntPart()
		fracs = append(fracs, frac{category, sum.Sub(whole)})
	}
	missing := grand.Round(0).IntPart() - floored
	sort.SliceStable(fracs, func(i, j int) bool {
		return fracs[i].rem.GreaterThan(fracs[j].rem)
	})
	for i := 0; i < len(fracs) && missing > 0; i++ {
		if fracs[i].rem.IsZero() {
			break
		}
		out.Set(fracs[i].category, out.Get(fracs[i].category)+1)
		missing--
	}
	return out
}

// Liquidated is salon revenue plus delivery revenue already collected.
func (a *Aggregator) Liquidated() int64 {
	return a.liquidated.Round(0).IntPart()
}

// CategoryCounts counts orders by their order-level bucket.
func (a *Aggregator) CategoryCounts() map[domain.Category]int {
	out := make(map[domain.Category]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

func (a *Aggregator) Included() int {
	return a.included
}
