// Package scheduler runs the nightly ledger close.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/metrics"
	"cajadiaria/backend/internal/reconcile"
	"cajadiaria/backend/internal/service"
)

const (
	DefaultOffset        = 5 * time.Second
	DefaultRetryInterval = 30 * time.Second
	DefaultMaxRetries    = 20
)

type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateClosing   State = "closing"
)

// Closer is the ledger side of the nightly job.
type Closer interface {
	CloseDay(ctx context.Context, date string) (domain.CloseResult, error)
	EnsureDay(ctx context.Context, date string) (domain.CloseResult, error)
}

type Options struct {
	Location *time.Location
	// Offset is added to local midnight so late writes of the old day land
	// before it is frozen.
	Offset time.Duration

	// RetryInterval and MaxRetries bound how long a close waits for the
	// feeds to load before it is given up.
	RetryInterval time.Duration
	MaxRetries    int

	Metrics *metrics.Metrics
	Logger  *logrus.Entry
	Now     func() time.Time
	After   func(time.Duration) <-chan time.Time
}

// DayCloser fires once per business day at local midnight plus an offset,
// freezes the day that just ended and seeds the new one.
type DayCloser struct {
	closer  Closer
	loc     *time.Location
	offset  time.Duration
	retry   time.Duration
	retries int
	metrics *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	state   State
	next    time.Time
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewDayCloser(closer Closer, opts Options) *DayCloser {
	if opts.Location == nil {
		opts.Location = time.FixedZone("COT", int(reconcile.BusinessOffset/time.Second))
	}
	if opts.Offset <= 0 {
		opts.Offset = DefaultOffset
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}

	return &DayCloser{
		closer:  closer,
		loc:     opts.Location,
		offset:  opts.Offset,
		retry:   opts.RetryInterval,
		retries: opts.MaxRetries,
		metrics: opts.Metrics,
		log:     opts.Logger.WithField("component", "scheduler"),
		now:     opts.Now,
		after:   opts.After,
		state:   StateIdle,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// NextRun is the first local midnight plus offset strictly after now.
func (d *DayCloser) NextRun(now time.Time) time.Time {
	local := now.In(d.loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc).Add(d.offset)
	for !run.After(local) {
		midnight := time.Date(run.Year(), run.Month(), run.Day()+1, 0, 0, 0, 0, d.loc)
		run = midnight.Add(d.offset)
	}
	return run
}

// Start arms the timer in a background goroutine. It re-arms after every run
// until ctx is cancelled or Stop is called.
func (d *DayCloser) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		d.log.Info("day_close_scheduler_started")

		for {
			next := d.NextRun(d.now())
			d.setState(StateScheduled, next)
			d.log.WithField("next_run", next.Format(time.RFC3339)).Debug("day close armed")

			select {
			case <-ctx.Done():
				d.setState(StateIdle, time.Time{})
				return
			case <-d.stop:
				d.setState(StateIdle, time.Time{})
				return
			case <-d.after(next.Sub(d.now())):
			}

			d.setState(StateClosing, next)
			d.RunOnce(ctx, next)
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (d *DayCloser) Stop() {
	d.once.Do(func() { close(d.stop) })

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.done
	}
	d.log.Info("day_close_scheduler_stopped")
}

// RunOnce closes the business day that ended before at and seeds the day
// that contains it. While the feeds are still loading the close is retried
// every RetryInterval; any other failure is logged and counted once.
func (d *DayCloser) RunOnce(ctx context.Context, at time.Time) {
	local := at.In(d.loc)
	today := local.Format(reconcile.DayLayout)
	yesterday := time.Date(local.Year(), local.Month(), local.Day()-1, 12, 0, 0, 0, d.loc).Format(reconcile.DayLayout)

	result, err := d.closeWhenReady(ctx, yesterday)
	switch {
	case errors.Is(err, service.ErrFeedNotReady):
		d.metrics.DayCloseRefused()
		d.log.WithFields(logrus.Fields{"date": yesterday}).WithError(err).Error("day close refused, feeds never finished loading")
	case err != nil:
		d.metrics.DayClosed(false)
		d.log.WithFields(logrus.Fields{"date": yesterday}).WithError(err).Error("day close failed")
	default:
		d.metrics.DayClosed(true)
		d.log.WithFields(logrus.Fields{
			"date":         yesterday,
			"total_income": result.Snapshot.TotalIncome,
			"created":      result.Created,
		}).Info("day closed")
	}

	if _, err := d.closer.EnsureDay(ctx, today); err != nil {
		d.log.WithFields(logrus.Fields{"date": today}).WithError(err).Error("day seed failed")
	}
}

func (d *DayCloser) closeWhenReady(ctx context.Context, date string) (domain.CloseResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := d.closer.CloseDay(ctx, date)
		if !errors.Is(err, service.ErrFeedNotReady) || attempt > d.retries {
			return result, err
		}
		d.log.WithFields(logrus.Fields{"date": date, "attempt": attempt}).Warn("feeds still loading, day close postponed")

		select {
		case <-ctx.Done():
			return result, err
		case <-d.stop:
			return result, err
		case <-d.after(d.retry):
		}
	}
}

// State reports what the loop is doing and when it fires next.
func (d *DayCloser) State() (State, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.next
}

func (d *DayCloser) setState(state State, next time.Time) {
	d.mu.Lock()
	d.state = state
	d.next = next
	d.mu.Unlock()
}
