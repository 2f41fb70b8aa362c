package reconcile

import (
	"testing"
	"time"

	"cajadiaria/backend/internal/domain"
)

var testZone = time.FixedZone("COT", -5*3600)

func TestParseExpenseCurrencyString(t *testing.T) {
	got, ok := ParseExpense(doc(domain.SourceExpenses, "p1", map[string]any{
		"amount":   "$12.500",
		"provider": "Proveedor X",
		"date":     "2026-10-14",
	}), testZone)
	if !ok {
		t.Fatalf("expected expense to parse")
	}
	if got.Amount != 12500 || got.Provider != "Proveedor X" || got.Day != "2026-10-14" {
		t.Fatalf("expected 12500 / Proveedor X / 2026-10-14, got %+v", got)
	}
}

func TestParseExpenseFallbacks(t *testing.T) {
	got, ok := ParseExpense(doc(domain.SourceExpenses, "p2", map[string]any{
		"monto":     -300,
		"store":     "  Plaza  ",
		"timestamp": time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC),
	}), testZone)
	if !ok {
		t.Fatalf("expected expense to parse")
	}
	if got.Amount != 0 {
		t.Fatalf("expected negative amount to count as 0, got %d", got.Amount)
	}
	if got.Provider != "Plaza" {
		t.Fatalf("expected store fallback, got %q", got.Provider)
	}
	if got.Day != "2026-10-13" {
		t.Fatalf("expected business day 2026-10-13, got %s", got.Day)
	}

	got, _ = ParseExpense(doc(domain.SourceExpenses, "p3", map[string]any{"amount": 100, "createdAt": "2026-10-14T15:00:00Z"}), testZone)
	if got.Provider != UnknownProvider {
		t.Fatalf("expected unknown provider sentinel, got %q", got.Provider)
	}

	if _, ok := ParseExpense(doc(domain.SourceExpenses, "p4", map[string]any{"amount": 100}), testZone); ok {
		t.Fatalf("expected undated expense to be skipped")
	}
}

func TestExpenseLedgerSummarisesOneDay(t *testing.T) {
	ledger := NewExpenseLedger(testZone, "2026-10-14")
	ledger.Add(doc(domain.SourceExpenses, "1", map[string]any{"amount": 5000, "provider": "Carnes", "date": "2026-10-14"}))
	ledger.Add(doc(domain.SourceExpenses, "2", map[string]any{"amount": "2.500", "provider": "Carnes", "date": "2026-10-14"}))
	ledger.Add(doc(domain.SourceExpenses, "3", map[string]any{"amount": 900, "date": "2026-10-14"}))
	ledger.Add(doc(domain.SourceExpenses, "4", map[string]any{"amount": 7000, "provider": "Carnes", "date": "2026-10-13"}))

	sum := ledger.Summary()
	if sum.Total != 8400 {
		t.Fatalf("expected total 8400, got %d", sum.Total)
	}
	if sum.ByProvider["Carnes"] != 7500 || sum.Counts["Carnes"] != 2 {
		t.Fatalf("expected Carnes 7500 over 2 records, got %d over %d", sum.ByProvider["Carnes"], sum.Counts["Carnes"])
	}
	if sum.Counts[UnknownProvider] != 1 {
		t.Fatalf("expected one unknown-provider record, got %d", sum.Counts[UnknownProvider])
	}
	if ledger.ByDay()["2026-10-13"] != 7000 {
		t.Fatalf("expected other days to be tracked, got %v", ledger.ByDay())
	}
}
