package reconcile

import (
	"strings"

	"cajadiaria/backend/internal/domain"
)

const (
	MethodCash      = "cash"
	MethodNequi     = "nequi"
	MethodDaviplata = "daviplata"
	MethodOther     = "other"
)

// PaymentRow is one (method, amount) pair of an order.
type PaymentRow struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// MethodKey folds a payment label onto one of the tracked methods.
func MethodKey(v any) string {
	s := strings.ToLower(text(v))
	switch {
	case strings.Contains(s, "efect"), strings.Contains(s, "cash"):
		return MethodCash
	case strings.Contains(s, "nequi"):
		return MethodNequi
	case strings.Contains(s, "davi"):
		return MethodDaviplata
	}
	return MethodOther
}

// PaymentRows extracts how an order was paid. Split lines win over the legacy
// single-method fields; split lines that disagree with the order total are
// rescaled so the rows add up to it.
func PaymentRows(fields map[string]any, total int64) []PaymentRow {
	if rows := splitRows(fields, total); len(rows) > 0 {
		return rows
	}
	if total <= 0 {
		return nil
	}
	for _, path := range []string{
		"meals.0.paymentMethod",
		"meals.0.payment",
		"breakfasts.0.payment",
		"breakfasts.0.paymentMethod",
		"paymentMethod",
		"payment",
	} {
		if v := field(fields, path); text(v) != "" {
			return []PaymentRow{{Method: MethodKey(v), Amount: total}}
		}
	}
	return []PaymentRow{{Method: MethodOther, Amount: total}}
}

func splitRows(fields map[string]any, total int64) []PaymentRow {
	lines := list(fields["paymentLines"])
	if len(lines) == 0 {
		lines = list(fields["payments"])
	}
	rows := make([]PaymentRow, 0, len(lines))
	var sum int64
	for _, line := range lines {
		m, ok := line.(map[string]any)
		if !ok {
			continue
		}
		amount := firstAmount(m, "amount", "monto", "value", "valor")
		if amount <= 0 {
			continue
		}
		method := m["method"]
		if method == nil {
			method = m["paymentMethod"]
		}
		if method == nil {
			method = m["type"]
		}
		rows = append(rows, PaymentRow{Method: MethodKey(method), Amount: amount})
		sum += amount
	}
	if len(rows) == 0 || total <= 0 || sum == total {
		return rows
	}

	// Rescale with floor and give the leftover to the largest row.
	var scaled int64
	largest := 0
	for i := range rows {
		rows[i].Amount = rows[i].Amount * total / sum
		scaled += rows[i].Amount
		if rows[i].Amount > rows[largest].Amount {
			largest = i
		}
	}
	rows[largest].Amount += total - scaled
	return rows
}

func firstAmount(m map[string]any, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return Amount(v)
		}
	}
	return 0
}

// PaymentReconciler sorts payment rows into collected and pending buckets.
type PaymentReconciler struct {
	totals domain.PaymentTotals
}

func NewPaymentReconciler() *PaymentReconciler {
	return &PaymentReconciler{}
}

// Add books a non-cancelled order. Salon money is in hand as soon as the order
// is rung up; delivery money only once its method is marked settled.
func (p *PaymentReconciler) Add(doc domain.Document, channel domain.Channel) {
	if Cancelled(doc.Fields) {
		return
	}
	total := Amount(doc.Fields["total"])
	delivery := channel == domain.ChannelDelivery
	for _, row := range PaymentRows(doc.Fields, total) {
		collected := !delivery || settledFor(doc.Fields, row.Method)
		t := &p.totals
		switch row.Method {
		case MethodCash:
			switch {
			case !delivery:
				t.SalonCash += row.Amount
			case collected:
				t.DeliveryCashSettled += row.Amount
			default:
				t.PendingCash += row.Amount
			}
		case MethodNequi:
			if collected {
				t.Nequi += row.Amount
			} else {
				t.PendingNequi += row.Amount
			}
		case MethodDaviplata:
			if collected {
				t.Daviplata += row.Amount
			} else {
				t.PendingDaviplata += row.Amount
			}
		default:
			if collected {
				t.Other += row.Amount
			} else {
				t.PendingOther += row.Amount
			}
		}
	}
}

func (p *PaymentReconciler) Totals() domain.PaymentTotals {
	out := p.totals
	out.CashInDrawer = out.SalonCash + out.DeliveryCashSettled
	return out
}
