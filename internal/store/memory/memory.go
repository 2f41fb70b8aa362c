package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	days            map[string]domain.DaySnapshot
	auditLogs       []domain.AuditLog
	operators map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		days:            make(map[string]domain.DaySnapshot),
		operators: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with dev operator accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, with weak dev defaults and a
// warning when unset.
func NewSeeded() *Store {
	s := New()
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("component", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		s.operators[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) FindDay(_ context.Context, date string) (*domain.DaySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.days[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &snap, nil
}

func (s *Store) InsertDay(_ context.Context, snap domain.DaySnapshot) (*domain.DaySnapshot, error) {
	if !store.ValidDate(snap.Date) {
		return nil, store.ErrInvalidDate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.days[snap.Date]; exists {
		return nil, store.ErrConflict
	}
	s.days[snap.Date] = snap
	return &snap, nil
}

func (s *Store) UpdateDay(_ context.Context, snap domain.DaySnapshot) (*domain.DaySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.days[snap.Date]
	if !ok {
		return nil, store.ErrNotFound
	}
	snap.CreatedAt = existing.CreatedAt
	s.days[snap.Date] = snap
	return &snap, nil
}

func (s *Store) DeleteDay(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.days[date]; !ok {
		return store.ErrNotFound
	}
	delete(s.days, date)
	return nil
}

func (s *Store) ListDays(_ context.Context, from string, to string) ([]domain.DaySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DaySnapshot, 0, len(s.days))
	for date, snap := range s.days {
		if (from != "" && date < from) || (to != "" && date > to) {
			continue
		}
		result = append(result, snap)
	}
	slices.SortFunc(result, func(a, b domain.DaySnapshot) int {
		return strings.Compare(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = "audit_" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := username(user.Username)
	if name == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidUser
	}
	if _, taken := s.operators[name]; taken {
		return store.ErrInvalidUser
	}
	user.Username, user.Active = name, true
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.operators[name] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.operators))
	for _, user := range s.operators {
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, login string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := username(login)
	if name == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidUser
	}
	user, ok := s.operators[name]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.operators[name] = user
	return nil
}

func username(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
