package store

import (
	"context"
	"errors"
	"time"

	"cajadiaria/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("snapshot already exists")
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidUser = errors.New("invalid user")
)

// Repository persists the daily income ledger plus the audit trail and the
// operator accounts that guard it.
type Repository interface {
	FindDay(ctx context.Context, date string) (*domain.DaySnapshot, error)
	// InsertDay fails with ErrConflict when the date is already stored.
	InsertDay(ctx context.Context, snap domain.DaySnapshot) (*domain.DaySnapshot, error)
	UpdateDay(ctx context.Context, snap domain.DaySnapshot) (*domain.DaySnapshot, error)
	DeleteDay(ctx context.Context, date string) error
	// ListDays returns snapshots with from <= date <= to, oldest first.
	ListDays(ctx context.Context, from string, to string) ([]domain.DaySnapshot, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidDate reports whether s is an ISO calendar day.
func ValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
