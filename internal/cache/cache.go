package cache

import (
	"context"
	"time"

	"cajadiaria/backend/internal/domain"
)

// LedgerCache keeps recent ledger range reads. Invalidate must be called after
// every snapshot write so readers never see a closed day with stale totals.
type LedgerCache interface {
	GetRange(ctx context.Context, from string, to string) ([]domain.DaySnapshot, bool, error)
	SetRange(ctx context.Context, from string, to string, days []domain.DaySnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopLedgerCache struct{}

func (NoopLedgerCache) GetRange(_ context.Context, _ string, _ string) ([]domain.DaySnapshot, bool, error) {
	return nil, false, nil
}

func (NoopLedgerCache) SetRange(_ context.Context, _ string, _ string, _ []domain.DaySnapshot, _ time.Duration) error {
	return nil
}

func (NoopLedgerCache) Invalidate(_ context.Context) error {
	return nil
}
