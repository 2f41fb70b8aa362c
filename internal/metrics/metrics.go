package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry     *prometheus.Registry
	snapshots    *prometheus.CounterVec
	feedErrors   *prometheus.CounterVec
	recompute    prometheus.Histogram
	dayCloses    *prometheus.CounterVec
	ledgerWrites *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_feed_snapshots_total",
			Help: "Full collection snapshots received per source.",
		}, []string{"source"}),
		feedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_feed_errors_total",
			Help: "Subscription failures per source.",
		}, []string{"source"}),
		recompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_recompute_duration_seconds",
			Help:    "Time spent reducing all feeds into aggregates.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		dayCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_day_close_runs_total",
			Help: "Scheduled day-close runs by result.",
		}, []string{"result"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_snapshot_writes_total",
			Help: "Snapshot store writes by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.snapshots,
		m.feedErrors,
		m.recompute,
		m.dayCloses,
		m.ledgerWrites,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SnapshotReceived(source string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(source).Inc()
}

func (m *Metrics) FeedFailed(source string) {
	if m == nil {
		return
	}
	m.feedErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.recompute.Observe(d.Seconds())
}

func (m *Metrics) DayClosed(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.dayCloses.WithLabelValues(result).Inc()
}

// DayCloseRefused counts scheduled closes given up because the feeds never
// finished loading.
func (m *Metrics) DayCloseRefused() {
	if m == nil {
		return
	}
	m.dayCloses.WithLabelValues("not_ready").Inc()
}

func (m *Metrics) LedgerWrite(op string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(op).Inc()
}
