package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/metrics"
	"cajadiaria/backend/internal/reconcile"
)

type HubOptions struct {
	Classifier *reconcile.Classifier
	Location   *time.Location
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Logger     *logrus.Entry
	// LookbackDays limits order subscriptions to documents created on or
	// after local midnight that many days ago. Zero subscribes unfiltered.
	// The window moves forward at every local midnight.
	LookbackDays int
	// Now and After are overridable for tests.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Hub holds the latest snapshot of every source and the aggregates derived
// from them. Each push replaces one source's documents and recomputes the
// whole reduction, so readers only ever see a consistent result.
type Hub struct {
	mu     sync.Mutex
	docs   map[domain.Source][]domain.Document
	states map[domain.Source]domain.SourceState
	since  time.Time

	lookback   int
	classifier *reconcile.Classifier
	loc        *time.Location
	notifier   Notifier
	metrics    *metrics.Metrics
	log        *logrus.Entry
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time

	current atomic.Pointer[domain.Aggregates]
}

func NewHub(opts HubOptions) *Hub {
	if opts.Classifier == nil {
		opts.Classifier = reconcile.NewClassifier()
	}
	if opts.Location == nil {
		opts.Location = time.FixedZone("COT", int(reconcile.BusinessOffset/time.Second))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.LookbackDays < 0 {
		opts.LookbackDays = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	h := &Hub{
		docs:       make(map[domain.Source][]domain.Document, len(domain.AllSources)),
		states:     make(map[domain.Source]domain.SourceState, len(domain.AllSources)),
		lookback:   opts.LookbackDays,
		classifier: opts.Classifier,
		loc:        opts.Location,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		log:        opts.Logger.WithField("component", "feed"),
		now:        opts.Now,
		after:      opts.After,
	}
	for _, source := range domain.AllSources {
		h.states[source] = domain.SourceNotLoaded
	}
	h.mu.Lock()
	h.recomputeLocked()
	h.mu.Unlock()
	return h
}

// Run subscribes to every source and blocks until ctx is done. A failing
// subscription marks only its own source as errored. With a lookback window
// every subscription is restarted at local midnight with the new window, so
// documents that age out are released.
func (h *Hub) Run(ctx context.Context, sub Subscriber) {
	for {
		filter := h.advanceWindow()
		round, cancel := context.WithCancel(ctx)
		wg := h.subscribeAll(round, sub, filter)

		if h.lookback == 0 {
			wg.Wait()
			cancel()
			return
		}

		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return
		case <-h.after(h.untilMidnight()):
		}
		cancel()
		wg.Wait()
		h.log.WithField("since", h.Since().Format(time.RFC3339)).Debug("feed window rolled")
	}
}

func (h *Hub) subscribeAll(ctx context.Context, sub Subscriber, filter Filter) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, source := range domain.AllSources {
		wg.Add(1)
		go func(source domain.Source) {
			defer wg.Done()
			f := filter
			if source == domain.SourceExpenses {
				f = Filter{}
			}
			if err := sub.Subscribe(ctx, source, f, h); err != nil && ctx.Err() == nil {
				h.Failed(source, err)
			}
		}(source)
	}
	return &wg
}

func (h *Hub) advanceWindow() Filter {
	if h.lookback == 0 {
		return Filter{}
	}
	local := h.now().In(h.loc)
	since := time.Date(local.Year(), local.Month(), local.Day()-h.lookback, 0, 0, 0, 0, h.loc)

	h.mu.Lock()
	h.since = since
	h.mu.Unlock()
	return Filter{Since: since}
}

func (h *Hub) untilMidnight() time.Duration {
	local := h.now().In(h.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, h.loc)
	return midnight.Sub(local)
}

// Since is the start of the current order window, zero when unfiltered.
func (h *Hub) Since() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.since
}

// Covers reports whether the held order documents can fully rebuild day.
func (h *Hub) Covers(day string) bool {
	since := h.Since()
	return since.IsZero() || day >= since.Format(reconcile.DayLayout)
}

func (h *Hub) Snapshot(source domain.Source, docs []domain.Document) {
	h.metrics.SnapshotReceived(string(source))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.docs[source] = docs
	h.states[source] = domain.SourceLoaded
	h.recomputeLocked()
}

// Failed records a broken subscription. The source keeps whatever documents
// it last delivered.
func (h *Hub) Failed(source domain.Source, err error) {
	h.metrics.FeedFailed(string(source))
	h.log.WithFields(logrus.Fields{"source": source, "error": err}).Error("subscription failed")

	h.mu.Lock()
	h.states[source] = domain.SourceErrored
	h.recomputeLocked()
	h.mu.Unlock()

	if h.notifier != nil {
		h.notifier.SourceFailed(source, err)
	}
}

// Aggregates returns the live figures for the current business day.
func (h *Hub) Aggregates() domain.Aggregates {
	today := reconcile.DayOf(h.now(), h.loc)
	if cur := h.current.Load(); cur != nil && cur.Date == today {
		return *cur
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.recomputeLocked()
}

// AggregatesFor reduces the held documents for an arbitrary business day.
func (h *Hub) AggregatesFor(day string) domain.Aggregates {
	h.mu.Lock()
	defer h.mu.Unlock()
	agg := reconcile.Reduce(h.inputLocked(day), h.classifier)
	agg.Live = true
	return agg
}

func (h *Hub) States() map[domain.Source]domain.SourceState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[domain.Source]domain.SourceState, len(h.states))
	for k, v := range h.states {
		out[k] = v
	}
	return out
}

func (h *Hub) Ready() bool {
	return reconcile.Ready(h.States())
}

func (h *Hub) Location() *time.Location {
	return h.loc
}

func (h *Hub) inputLocked(day string) reconcile.Input {
	orders := make(map[domain.Source][]domain.Document, len(domain.OrderSources))
	for _, source := range domain.OrderSources {
		orders[source] = h.docs[source]
	}
	states := make(map[domain.Source]domain.SourceState, len(h.states))
	for k, v := range h.states {
		states[k] = v
	}
	return reconcile.Input{
		Orders:   orders,
		Expenses: h.docs[domain.SourceExpenses],
		States:   states,
		Day:      day,
		Location: h.loc,
		Now:      h.now(),
	}
}

func (h *Hub) recomputeLocked() *domain.Aggregates {
	started := time.Now()
	day := reconcile.DayOf(h.now(), h.loc)
	agg := reconcile.Reduce(h.inputLocked(day), h.classifier)
	agg.Live = true
	h.current.Store(&agg)
	h.metrics.ObserveRecompute(time.Since(started))
	return &agg
}
