package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesLedgerCounters(t *testing.T) {
	m := New()
	m.SnapshotReceived("orders")
	m.FeedFailed("payments")
	m.DayClosed(true)
	m.DayCloseRefused()
	m.LedgerWrite("insert")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`ledger_feed_snapshots_total{source="orders"} 1`,
		`ledger_feed_errors_total{source="payments"} 1`,
		`ledger_day_close_runs_total{result="ok"} 1`,
		`ledger_day_close_runs_total{result="not_ready"} 1`,
		`ledger_snapshot_writes_total{op="insert"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SnapshotReceived("orders")
	m.DayClosed(false)
	m.DayCloseRefused()
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}
