package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cajadiaria/backend/internal/domain"
)

const tokenIssuer = "cajadiaria"

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies HS256 access tokens for ledger operators.
// Accounts are read from the user store and cached by normalised username.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	parser   *jwtlib.Parser
	store    UserStore

	mu       sync.RWMutex
	accounts map[string]operator
}

type operator struct {
	hash   string
	role   string
	active bool
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, store UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
			jwtlib.WithIssuer(tokenIssuer),
			jwtlib.WithExpirationRequired(),
		),
		store:    store,
		accounts: make(map[string]operator),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.reload(ctx)
	return a
}

func normaliseUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// EnsureAdmin creates the configured admin account when the user store does
// not have it yet. An existing account is left untouched.
func (a *AuthManager) EnsureAdmin(ctx context.Context, username string, password string) error {
	username = normaliseUsername(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	a.reload(ctx)
	if _, ok := a.lookup(username); ok {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	if a.store != nil {
		account := domain.UserAccount{
			Username:  username,
			Password:  hash,
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.store.CreateUser(ctx, account); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.accounts[username] = operator{hash: hash, role: "admin", active: true}
	a.mu.Unlock()
	return nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.reload(ctx)

	username := normaliseUsername(req.Username)
	op, ok := a.lookup(username)
	if !ok || !verifyPassword(op.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !op.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, op.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        op.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken verifies signature, issuer and expiry and returns the operator
// the token was issued to.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims ledgerClaims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) lookup(username string) (operator, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	op, ok := a.accounts[username]
	return op, ok
}

// reload refreshes the account cache from the user store. Accounts still
// holding a plain-text password are rehashed and written back.
func (a *AuthManager) reload(ctx context.Context) {
	if a.store == nil {
		return
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return
	}

	fresh := make(map[string]operator, len(users))
	for _, user := range users {
		username := normaliseUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isPasswordHash(hash) {
			if upgraded, err := hashPassword(hash); err == nil {
				hash = upgraded
				_ = a.store.UpdateUserPassword(ctx, username, upgraded)
			}
		}
		fresh[username] = operator{hash: hash, role: user.Role, active: user.Active}
	}

	a.mu.Lock()
	for username, op := range fresh {
		a.accounts[username] = op
	}
	a.mu.Unlock()
}

func verifyPassword(hash string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isPasswordHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
