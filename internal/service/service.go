package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cajadiaria/backend/internal/cache"
	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/metrics"
	"cajadiaria/backend/internal/reconcile"
	"cajadiaria/backend/internal/store"
)

var (
	ErrAdminRequired = errors.New("admin role required")
	// ErrFeedNotReady refuses a save or close while some source has not
	// delivered its first snapshot, so a stored day is never replaced with
	// partial figures.
	ErrFeedNotReady = errors.New("live feeds are still loading")
	// ErrOutsideFeedWindow refuses to close a day older than the order
	// documents the feeds hold.
	ErrOutsideFeedWindow = errors.New("date is outside the live feed window")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// LiveSource exposes the aggregates computed from the change feeds.
type LiveSource interface {
	Aggregates() domain.Aggregates
	AggregatesFor(day string) domain.Aggregates
	Ready() bool
	Covers(day string) bool
}

type Options struct {
	Cache    cache.LedgerCache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *logrus.Entry
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	live     LiveSource
	cache    cache.LedgerCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Entry
	loc      *time.Location
	now      func() time.Time
}

func New(repo store.Repository, live LiveSource, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopLedgerCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Location == nil {
		opts.Location = time.FixedZone("COT", int(reconcile.BusinessOffset/time.Second))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		live:     live,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		log:      opts.Logger.WithField("component", "service"),
		loc:      opts.Location,
		now:      opts.Now,
	}
}

// Today is the open business day.
func (s *Service) Today() string {
	return reconcile.DayOf(s.now(), s.loc)
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// UpsertDay stores categories as the snapshot for date, creating it on first
// write and updating it in place afterwards.
func (s *Service) UpsertDay(ctx context.Context, date string, categories domain.Categories) (domain.CloseResult, error) {
	return s.upsertDay(ctx, date, categories, "ledger_upsert")
}

// SaveToday freezes the current live figures into today's snapshot.
func (s *Service) SaveToday(ctx context.Context) (domain.CloseResult, error) {
	if !s.live.Ready() {
		return domain.CloseResult{}, ErrFeedNotReady
	}
	today := s.Today()
	return s.upsertDay(ctx, today, s.live.Aggregates().Categories, "ledger_save")
}

// CloseDay recomputes date from the feeds and writes its snapshot. Running it
// twice for the same date leaves a single, updated snapshot. It refuses while
// the feeds are loading or when date is older than the feed window.
func (s *Service) CloseDay(ctx context.Context, date string) (domain.CloseResult, error) {
	if !store.ValidDate(date) {
		return domain.CloseResult{}, store.ErrInvalidDate
	}
	if !s.live.Ready() {
		return domain.CloseResult{}, ErrFeedNotReady
	}
	if !s.live.Covers(date) {
		return domain.CloseResult{}, ErrOutsideFeedWindow
	}
	return s.upsertDay(ctx, date, s.live.AggregatesFor(date).Categories, "day_close")
}

// EnsureDay seeds a zero snapshot for date unless one already exists.
func (s *Service) EnsureDay(ctx context.Context, date string) (domain.CloseResult, error) {
	if !store.ValidDate(date) {
		return domain.CloseResult{}, store.ErrInvalidDate
	}

	existing, err := s.repo.FindDay(ctx, date)
	if err == nil {
		return domain.CloseResult{Date: date, Snapshot: *existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.CloseResult{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.InsertDay(ctx, domain.DaySnapshot{Date: date, CreatedAt: now, UpdatedAt: now})
	if errors.Is(err, store.ErrConflict) {
		// Someone else wrote the day first; their figures stand.
		existing, err := s.repo.FindDay(ctx, date)
		if err != nil {
			return domain.CloseResult{}, err
		}
		return domain.CloseResult{Date: date, Snapshot: *existing}, nil
	}
	if err != nil {
		return domain.CloseResult{}, err
	}

	s.metrics.LedgerWrite("insert")
	s.invalidate(ctx)
	s.logAudit(ctx, "day_seed", "daily_income", date, "totalIncome=0")
	return domain.CloseResult{Date: date, Snapshot: *created, Created: true}, nil
}

func (s *Service) DeleteDay(ctx context.Context, date string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrAdminRequired
	}
	if !store.ValidDate(date) {
		return store.ErrInvalidDate
	}
	if err := s.repo.DeleteDay(ctx, date); err != nil {
		return err
	}

	s.metrics.LedgerWrite("delete")
	s.invalidate(ctx)
	s.logAudit(ctx, "ledger_delete", "daily_income", date, "")
	return nil
}

// Dashboard returns live aggregates for the open day. Any other date reads
// its stored snapshot, or zeros when the day was never closed.
func (s *Service) Dashboard(ctx context.Context, date string) (domain.Aggregates, error) {
	today := s.Today()
	if date == "" || date == today {
		return s.live.Aggregates(), nil
	}
	if !store.ValidDate(date) {
		return domain.Aggregates{}, store.ErrInvalidDate
	}

	var categories domain.Categories
	snap, err := s.repo.FindDay(ctx, date)
	switch {
	case err == nil:
		categories = snap.Categories
	case errors.Is(err, store.ErrNotFound):
	default:
		return domain.Aggregates{}, err
	}

	return domain.Aggregates{
		Date:          date,
		Categories:    categories,
		TotalIncome:   categories.Total(),
		TotalDelivery: categories.TotalDelivery(),
		SalonIncome:   categories.SalonIncome(),
		Ready:         true,
		ComputedAt:    s.now(),
	}, nil
}

// Periods builds the chart views for the current year plus the trailing
// week, which may reach into the previous year.
func (s *Service) Periods(ctx context.Context) (domain.PeriodStructure, error) {
	now := s.now().In(s.loc)
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, s.loc)
	if weekStart := now.AddDate(0, 0, -6); weekStart.Before(from) {
		from = weekStart
	}
	to := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, s.loc)

	days, err := s.ListDays(ctx, from.Format(reconcile.DayLayout), to.Format(reconcile.DayLayout))
	if err != nil {
		return domain.PeriodStructure{}, err
	}
	snapshots := make(map[string]domain.DaySnapshot, len(days))
	for _, day := range days {
		snapshots[day.Date] = day
	}

	live := s.live.Aggregates()
	return reconcile.BuildPeriods(reconcile.PeriodInput{
		Now:           now,
		Location:      s.loc,
		Snapshots:     snapshots,
		Live:          live.Categories,
		ExpensesByDay: live.ExpensesByDay,
	}), nil
}

// ListDays returns the stored snapshots in [from, to], served from the cache
// when possible. Empty bounds are open.
func (s *Service) ListDays(ctx context.Context, from string, to string) ([]domain.DaySnapshot, error) {
	if (from != "" && !store.ValidDate(from)) || (to != "" && !store.ValidDate(to)) {
		return nil, store.ErrInvalidDate
	}
	if from != "" && to != "" && from > to {
		return nil, store.ErrInvalidDate
	}

	if days, ok, err := s.cache.GetRange(ctx, from, to); err != nil {
		s.log.WithError(err).Warn("ledger cache read failed")
	} else if ok {
		return days, nil
	}

	days, err := s.repo.ListDays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetRange(ctx, from, to, days, s.cacheTTL); err != nil {
		s.log.WithError(err).Warn("ledger cache write failed")
	}
	return days, nil
}

// Report sums the stored snapshots of a date range.
func (s *Service) Report(ctx context.Context, from string, to string) (domain.LedgerReport, error) {
	days, err := s.ListDays(ctx, from, to)
	if err != nil {
		return domain.LedgerReport{}, err
	}

	report := domain.LedgerReport{From: from, To: to, Days: days}
	for _, day := range days {
		report.Categories = report.Categories.Plus(day.Categories)
	}
	report.TotalIncome = report.Categories.Total()
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if to.IsZero() {
		// to is exclusive; include entries written this instant.
		to = s.now().UTC().Add(time.Second)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if from.After(to) {
		return nil, store.ErrInvalidDate
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) upsertDay(ctx context.Context, date string, categories domain.Categories, action string) (domain.CloseResult, error) {
	if !store.ValidDate(date) {
		return domain.CloseResult{}, store.ErrInvalidDate
	}

	now := s.now().UTC()
	snap := domain.DaySnapshot{
		Date:        date,
		Categories:  categories,
		TotalIncome: categories.Total(),
		UpdatedAt:   now,
	}

	existing, err := s.repo.FindDay(ctx, date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.CloseResult{}, err
	}

	var (
		saved   *domain.DaySnapshot
		created bool
	)
	if existing == nil {
		snap.CreatedAt = now
		saved, err = s.repo.InsertDay(ctx, snap)
		if err != nil {
			return domain.CloseResult{}, fmt.Errorf("insert %s: %w", date, err)
		}
		created = true
		s.metrics.LedgerWrite("insert")
	} else {
		snap.CreatedAt = existing.CreatedAt
		saved, err = s.repo.UpdateDay(ctx, snap)
		if err != nil {
			return domain.CloseResult{}, fmt.Errorf("update %s: %w", date, err)
		}
		s.metrics.LedgerWrite("update")
	}

	s.invalidate(ctx)
	s.logAudit(ctx, action, "daily_income", date, fmt.Sprintf("totalIncome=%d,created=%t", saved.TotalIncome, created))
	return domain.CloseResult{Date: date, Snapshot: *saved, Created: created}, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("ledger cache invalidate failed")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            "audit_" + uuid.NewString(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}
