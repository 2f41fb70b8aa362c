package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/feed"
)

type recordingSink struct {
	mu    sync.Mutex
	calls map[domain.Source][][]domain.Document
}

func (s *recordingSink) Snapshot(source domain.Source, docs []domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[domain.Source][][]domain.Document)
	}
	s.calls[source] = append(s.calls[source], docs)
}

func (s *recordingSink) count(source domain.Source) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls[source])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSubscribeReplaysCurrentSnapshotAndFollowsUpdates(t *testing.T) {
	f := New()
	f.Publish(domain.SourceTableOrders, []domain.Document{{ID: "a", Fields: map[string]any{"total": 1000}}})

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Subscribe(ctx, domain.SourceTableOrders, feed.Filter{}, sink) }()

	waitFor(t, func() bool { return sink.count(domain.SourceTableOrders) == 1 })

	f.Publish(domain.SourceTableOrders, nil)
	if sink.count(domain.SourceTableOrders) != 2 {
		t.Fatalf("expected publish to reach subscriber synchronously")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
	if f.Subscribers(domain.SourceTableOrders) != 0 {
		t.Fatalf("expected subscription removed")
	}
}

func TestFailEndsSubscriptionWithError(t *testing.T) {
	f := New()
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() { done <- f.Subscribe(context.Background(), domain.SourceExpenses, feed.Filter{}, sink) }()

	waitFor(t, func() bool { return f.Subscribers(domain.SourceExpenses) == 1 })
	boom := errors.New("listen failed")
	f.Fail(domain.SourceExpenses, boom)

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestHubRunOverMemoryFeed(t *testing.T) {
	zone := time.FixedZone("COT", -5*3600)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, zone)
	f := New()
	f.Publish(domain.SourceDeliveryLunch, []domain.Document{{ID: "o1", Fields: map[string]any{"total": 13000, "createdAt": now}}})
	f.Publish(domain.SourceTableOrders, []domain.Document{{ID: "old", Fields: map[string]any{"total": 9000, "createdAt": now.AddDate(0, 0, -30)}}})
	for _, source := range []domain.Source{domain.SourceWaiterOrders, domain.SourceDeliveryBreakfast, domain.SourceSalonBreakfast, domain.SourceExpenses} {
		f.Publish(source, nil)
	}

	hub := feed.NewHub(feed.HubOptions{Location: zone, LookbackDays: 7, Now: func() time.Time { return now }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, f)

	waitFor(t, hub.Ready)
	got := hub.Aggregates()
	if got.Categories.DeliveryLunch != 13000 || got.TotalIncome != 13000 {
		t.Fatalf("expected 13000 delivery lunch, got %+v", got.Categories)
	}

	f.Fail(domain.SourceWaiterOrders, errors.New("quota exceeded"))
	waitFor(t, func() bool { return hub.States()[domain.SourceWaiterOrders] == domain.SourceErrored })
	if hub.States()[domain.SourceDeliveryLunch] != domain.SourceLoaded {
		t.Fatalf("expected other sources unaffected")
	}
}

func TestHubWindowMovesForwardAtMidnight(t *testing.T) {
	zone := time.FixedZone("COT", -5*3600)
	var mu sync.Mutex
	now := time.Date(2026, 10, 14, 23, 0, 0, 0, zone)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	waits := make(chan time.Duration, 4)
	fire := make(chan time.Time)

	f := New()
	f.Publish(domain.SourceDeliveryLunch, []domain.Document{
		{ID: "edge", Fields: map[string]any{"total": 4000, "createdAt": time.Date(2026, 10, 7, 8, 0, 0, 0, zone)}},
	})
	for _, source := range []domain.Source{domain.SourceTableOrders, domain.SourceWaiterOrders, domain.SourceDeliveryBreakfast, domain.SourceSalonBreakfast, domain.SourceExpenses} {
		f.Publish(source, nil)
	}

	hub := feed.NewHub(feed.HubOptions{
		Location:     zone,
		LookbackDays: 7,
		Now:          clock,
		After: func(d time.Duration) <-chan time.Time {
			waits <- d
			return fire
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx, f)
	}()

	if wait := <-waits; wait != time.Hour {
		t.Fatalf("expected to wait one hour for midnight, got %s", wait)
	}
	waitFor(t, hub.Ready)
	if !hub.Covers("2026-10-07") || hub.Covers("2026-10-06") {
		t.Fatalf("expected window to start on 2026-10-07, got %s", hub.Since())
	}
	if got := hub.AggregatesFor("2026-10-07").TotalIncome; got != 4000 {
		t.Fatalf("expected the edge order inside the window, got %d", got)
	}

	mu.Lock()
	now = time.Date(2026, 10, 15, 0, 0, 0, 0, zone)
	mu.Unlock()
	fire <- now

	if wait := <-waits; wait != 24*time.Hour {
		t.Fatalf("expected a full day until the next roll, got %s", wait)
	}
	if hub.Covers("2026-10-07") || !hub.Covers("2026-10-08") {
		t.Fatalf("expected window to start on 2026-10-08, got %s", hub.Since())
	}
	waitFor(t, func() bool { return hub.AggregatesFor("2026-10-07").TotalIncome == 0 })
	if got := f.Subscribers(domain.SourceDeliveryLunch); got != 1 {
		t.Fatalf("expected a single live subscription after the roll, got %d", got)
	}

	cancel()
	<-done
}
