package reconcile

import (
	"strings"
	"time"

	"cajadiaria/backend/internal/domain"
)

// UnknownProvider labels expenses recorded without a provider.
const UnknownProvider = "—"

// ParseExpense canonicalises one expense record. Records with no usable
// date are rejected since they cannot be placed on a day.
func ParseExpense(doc domain.Document, loc *time.Location) (domain.Expense, bool) {
	at, ok := expenseTime(doc.Fields)
	if !ok {
		return domain.Expense{}, false
	}
	amount := firstAmount(doc.Fields, "amount", "monto", "valor", "value")
	if amount < 0 {
		amount = 0
	}
	provider := text(doc.Fields["provider"])
	if provider == "" {
		provider = text(doc.Fields["store"])
	}
	if provider == "" {
		provider = UnknownProvider
	}
	return domain.Expense{
		ID:       doc.ID,
		Amount:   amount,
		Provider: provider,
		Day:      DayOf(at, loc),
	}, true
}

func expenseTime(fields map[string]any) (time.Time, bool) {
	for _, key := range []string{"timestamp", "createdAt"} {
		if t, ok := timeValue(fields[key]); ok {
			return t, true
		}
	}
	if s, ok := fields["date"].(string); ok {
		return dateOnly(strings.TrimSpace(s))
	}
	return timeValue(fields["date"])
}

// ExpenseLedger accumulates expenses for one day and keeps per-day totals for
// every day it has seen.
type ExpenseLedger struct {
	loc     *time.Location
	day     string
	summary domain.ExpenseSummary
	byDay   map[string]int64
}

// NewExpenseLedger builds a ledger whose summary covers day. An empty day
// summarises every record.
func NewExpenseLedger(loc *time.Location, day string) *ExpenseLedger {
	return &ExpenseLedger{
		loc: loc,
		day: day,
		summary: domain.ExpenseSummary{
			ByProvider: make(map[string]int64),
			Counts:     make(map[string]int),
		},
		byDay: make(map[string]int64),
	}
}

func (l *ExpenseLedger) Add(doc domain.Document) (domain.Expense, bool) {
	expense, ok := ParseExpense(doc, l.loc)
	if !ok {
		return domain.Expense{}, false
	}
	l.byDay[expense.Day] += expense.Amount
	if l.day != "" && expense.Day != l.day {
		return expense, true
	}
	l.summary.Total += expense.Amount
	l.summary.ByProvider[expense.Provider] += expense.Amount
	l.summary.Counts[expense.Provider]++
	return expense, true
}

func (l *ExpenseLedger) Summary() domain.ExpenseSummary {
	return l.summary
}

func (l *ExpenseLedger) ByDay() map[string]int64 {
	return l.byDay
}
