package reconcile

import (
	"time"

	"cajadiaria/backend/internal/domain"
)

// Input is the latest full snapshot of every feed.
type Input struct {
	Orders   map[domain.Source][]domain.Document
	Expenses []domain.Document
	States   map[domain.Source]domain.SourceState
	// Day restricts orders and the expense summary to one business day.
	// Empty means no restriction.
	Day      string
	Location *time.Location
	Now      time.Time
}

// Reduce recomputes every aggregate from scratch. It is pure: the same input
// yields the same output no matter in which order the feeds last changed.
func Reduce(in Input, classifier *Classifier) domain.Aggregates {
	if classifier == nil {
		classifier = NewClassifier()
	}
	aggregator := NewAggregator(classifier)
	payments := NewPaymentReconciler()
	ledger := NewExpenseLedger(in.Location, in.Day)

	var tally domain.StatusTally
	counts := domain.OrderCounts{}
	seen := make(map[string]struct{})

	for _, source := range domain.OrderSources {
		for _, doc := range in.Orders[source] {
			if doc.ID != "" {
				if _, dup := seen[doc.ID]; dup {
					continue
				}
			}
			if in.Day != "" {
				at, ok := CreatedAt(doc.Fields)
				if !ok || DayOf(at, in.Location) != in.Day {
					continue
				}
			}
			if doc.ID != "" {
				seen[doc.ID] = struct{}{}
			}
			doc.Source = source

			tallyStatus(&tally, doc.Fields)
			class, included := aggregator.Add(doc)
			if !included {
				continue
			}
			payments.Add(doc, class.Channel)
			if class.Channel == domain.ChannelDelivery {
				counts.Delivery++
			} else {
				counts.Salon++
			}
		}
	}
	for _, doc := range in.Expenses {
		ledger.Add(doc)
	}

	categories := aggregator.Categories()
	counts.ByCategory = aggregator.CategoryCounts()
	expenses := ledger.Summary()
	liquidated := aggregator.Liquidated()

	states := make(map[domain.Source]domain.SourceState, len(domain.AllSources))
	for _, source := range domain.AllSources {
		state, ok := in.States[source]
		if !ok {
			state = domain.SourceNotLoaded
		}
		states[source] = state
	}

	return domain.Aggregates{
		Date:            in.Day,
		Categories:      categories,
		TotalIncome:     categories.Total(),
		TotalDelivery:   categories.TotalDelivery(),
		SalonIncome:     categories.SalonIncome(),
		Counts:          counts,
		Status:          tally,
		Payments:        payments.Totals(),
		Expenses:        expenses,
		ExpensesByDay:   ledger.ByDay(),
		LiquidatedGross: liquidated,
		Net:             Net(liquidated, expenses.Total),
		Sources:         states,
		Ready:           Ready(states),
		ComputedAt:      in.Now,
	}
}

// Net is collected gross minus expenses, never below zero.
func Net(liquidatedGross, expenses int64) int64 {
	if net := liquidatedGross - expenses; net > 0 {
		return net
	}
	return 0
}

// Ready is true once every subscription has either loaded or failed.
func Ready(states map[domain.Source]domain.SourceState) bool {
	for _, source := range domain.AllSources {
		if states[source] != domain.SourceLoaded && states[source] != domain.SourceErrored {
			return false
		}
	}
	return true
}
