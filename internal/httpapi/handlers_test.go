package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/feed"
	"cajadiaria/backend/internal/metrics"
	"cajadiaria/backend/internal/service"
	"cajadiaria/backend/internal/store/memory"
)

var testZone = time.FixedZone("COT", -5*3600)

// newTestAPI builds a full API over the seeded in-memory store and a feed hub
// pinned to 2026-10-14 noon, so handler tests exercise the whole request path.
func newTestAPI(t *testing.T) (*API, *feed.Hub) {
	t.Helper()

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, testZone)
	clock := func() time.Time { return now }

	repo := memory.NewSeeded()
	hub := feed.NewHub(feed.HubOptions{Location: testZone, Now: clock})
	svc := service.New(repo, hub, service.Options{Location: testZone, Now: clock})
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigin: "*", Feed: hub, Metrics: metrics.New().Handler()}), hub
}

func do(t *testing.T, api *API, method string, path string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func publishToday(hub *feed.Hub) {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, testZone)
	hub.Snapshot(domain.SourceDeliveryLunch, []domain.Document{
		{ID: "d1", Fields: map[string]any{"total": 13000, "createdAt": at, "paymentMethod": "efectivo", "settled": true}},
	})
	hub.Snapshot(domain.SourceTableOrders, []domain.Document{
		{ID: "t1", Fields: map[string]any{"total": "$12.500", "createdAt": at, "tableNumber": 4}},
	})
	for _, source := range []domain.Source{domain.SourceWaiterOrders, domain.SourceDeliveryBreakfast, domain.SourceSalonBreakfast} {
		hub.Snapshot(source, nil)
	}
	hub.Snapshot(domain.SourceExpenses, []domain.Document{
		{ID: "e1", Fields: map[string]any{"amount": 3000, "provider": "Plaza", "date": "2026-10-14"}},
	})
}

func TestHandleHealthReportsFeedReadiness(t *testing.T) {
	api, hub := newTestAPI(t)

	res := do(t, api, http.MethodGet, "/healthz", "")
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true || body["ready"] != false {
		t.Fatalf("expected ok and not ready, got %v", body)
	}

	publishToday(hub)
	res = do(t, api, http.MethodGet, "/healthz", "")
	body = map[string]any{}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ready"] != true {
		t.Fatalf("expected ready after every source reported, got %v", body["ready"])
	}
}

func TestDashboardReturnsLiveAggregates(t *testing.T) {
	api, hub := newTestAPI(t)
	publishToday(hub)
	token := login(t, api, "cashier", "cashier123")

	res := do(t, api, http.MethodGet, "/api/v1/dashboard", token)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var agg domain.Aggregates
	if err := json.NewDecoder(res.Body).Decode(&agg); err != nil {
		t.Fatalf("decode aggregates: %v", err)
	}
	if agg.Categories.DeliveryLunch != 13000 || agg.Categories.DineInLunch != 12500 {
		t.Fatalf("unexpected categories %+v", agg.Categories)
	}
	if agg.TotalIncome != 25500 || agg.Expenses.Total != 3000 || agg.Net != 22500 {
		t.Fatalf("expected income 25500, expenses 3000, net 22500, got %d %d %d", agg.TotalIncome, agg.Expenses.Total, agg.Net)
	}
	if !agg.Live || !agg.Ready {
		t.Fatalf("expected live and ready aggregates")
	}
}

func TestDashboardRejectsBadDate(t *testing.T) {
	api, _ := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	res := do(t, api, http.MethodGet, "/api/v1/dashboard?date=ayer", token)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSaveThenCloseThenExport(t *testing.T) {
	api, hub := newTestAPI(t)
	publishToday(hub)
	token := login(t, api, "admin", "admin123")

	res := do(t, api, http.MethodPost, "/api/v1/ledger/save", token)
	if res.Code != http.StatusOK {
		t.Fatalf("save expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var saved domain.CloseResult
	if err := json.NewDecoder(res.Body).Decode(&saved); err != nil {
		t.Fatalf("decode save: %v", err)
	}
	if !saved.Created || saved.Snapshot.TotalIncome != 25500 {
		t.Fatalf("expected a created snapshot of 25500, got %+v", saved)
	}

	res = do(t, api, http.MethodPost, "/api/v1/ledger/close?date=2026-10-14", token)
	var closed domain.CloseResult
	if err := json.NewDecoder(res.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.Created || closed.Snapshot.TotalIncome != 25500 {
		t.Fatalf("expected close to update the saved day, got %+v", closed)
	}

	res = do(t, api, http.MethodGet, "/api/v1/ledger?from=2026-10-01&to=2026-10-31", token)
	var ledger domain.LedgerReport
	if err := json.NewDecoder(res.Body).Decode(&ledger); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if len(ledger.Days) != 1 || ledger.TotalIncome != 25500 {
		t.Fatalf("expected one day of 25500, got %+v", ledger)
	}

	res = do(t, api, http.MethodGet, "/api/v1/ledger?from=2026-10-01&to=2026-10-31&format=csv", token)
	if got := res.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	if !strings.Contains(res.Body.String(), "2026-10-14,13000,0,12500,0,0,0,25500") {
		t.Fatalf("unexpected csv body %q", res.Body.String())
	}

	res = do(t, api, http.MethodGet, "/api/v1/ledger?format=xlsx", token)
	if res.Code != http.StatusOK {
		t.Fatalf("xlsx expected 200, got %d", res.Code)
	}
	book, err := excelize.OpenReader(res.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	if got, _ := book.GetCellValue("Ledger", "A2"); got != "2026-10-14" {
		t.Fatalf("expected the saved day in A2, got %q", got)
	}

	res = do(t, api, http.MethodGet, "/api/v1/ledger?format=pdf", token)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", res.Code)
	}
}

func TestDeleteLedgerDay(t *testing.T) {
	api, hub := newTestAPI(t)
	publishToday(hub)
	token := login(t, api, "admin", "admin123")

	res := do(t, api, http.MethodDelete, "/api/v1/ledger/2026-10-01", token)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing day, got %d", res.Code)
	}

	if res := do(t, api, http.MethodPost, "/api/v1/ledger/close?date=2026-10-01", token); res.Code != http.StatusOK {
		t.Fatalf("close expected 200, got %d", res.Code)
	}
	if res := do(t, api, http.MethodDelete, "/api/v1/ledger/2026-10-01", token); res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}

	res = do(t, api, http.MethodGet, "/api/v1/audit-logs?date=2026-10-14", token)
	var body struct {
		AuditLogs []domain.AuditLog `json:"audit_logs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode audit logs: %v", err)
	}
	if len(body.AuditLogs) != 2 {
		t.Fatalf("expected close and delete audited, got %d entries", len(body.AuditLogs))
	}
}

func TestSaveAndCloseRefusedWhileFeedsLoad(t *testing.T) {
	api, hub := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	for _, path := range []string{"/api/v1/ledger/save", "/api/v1/ledger/close?date=2026-10-13"} {
		res := do(t, api, http.MethodPost, path, token)
		if res.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s expected 503 while loading, got %d", path, res.Code)
		}
		if res.Header().Get("Retry-After") == "" {
			t.Fatalf("%s expected a Retry-After hint", path)
		}
		if !strings.Contains(res.Body.String(), "still loading") {
			t.Fatalf("%s expected the refusal reason, got %s", path, res.Body.String())
		}
	}

	publishToday(hub)
	if res := do(t, api, http.MethodPost, "/api/v1/ledger/close?date=2026-10-13", token); res.Code != http.StatusOK {
		t.Fatalf("expected 200 once every feed reported, got %d", res.Code)
	}
}

func TestPeriodsEndpoint(t *testing.T) {
	api, hub := newTestAPI(t)
	publishToday(hub)
	token := login(t, api, "cashier", "cashier123")

	res := do(t, api, http.MethodGet, "/api/v1/periods", token)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var periods domain.PeriodStructure
	if err := json.NewDecoder(res.Body).Decode(&periods); err != nil {
		t.Fatalf("decode periods: %v", err)
	}
	if len(periods.Last7Days) != 7 || len(periods.ThisMonth) != 31 || len(periods.ThisYear) != 12 {
		t.Fatalf("unexpected period shape %d/%d/%d", len(periods.Last7Days), len(periods.ThisMonth), len(periods.ThisYear))
	}
	if periods.Today.TotalIncome != 25500 || periods.Today.Expenses != 3000 {
		t.Fatalf("expected live today 25500 with 3000 expenses, got %+v", periods.Today)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	api, _ := newTestAPI(t)

	res := do(t, api, http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "go_goroutines") {
		t.Fatalf("expected go collector output")
	}
}
