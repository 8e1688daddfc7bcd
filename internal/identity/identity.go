// Package identity handles registration, login, and bearer-token
// resolution. Passwords are bcrypt-hashed; sessions are HS256 JWTs whose
// subject is the user's account ID.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// User is a registered login. The user's account shares its ID.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists users. Implemented by persistence.UserStore and the
// in-memory store used in tests.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
}

// Service issues and resolves credentials.
type Service struct {
	users    UserStore
	accounts ledger.Store
	secret   []byte
	tokenTTL time.Duration
	currency string
	log      zerolog.Logger
}

func NewService(users UserStore, accounts ledger.Store, secret []byte, currency string, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		accounts: accounts,
		secret:   secret,
		tokenTTL: 7 * 24 * time.Hour,
		currency: currency,
		log:      log,
	}
}

// Register creates a user and its zero-balance account, then issues a token.
func (s *Service) Register(ctx context.Context, username, password string) (User, string, error) {
	if username == "" || password == "" {
		return User{}, "", traideerr.New(traideerr.KindConflict, "username and password are required")
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return User{}, "", traideerr.New(traideerr.KindConflict, "username %q is taken", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", traideerr.Wrap(traideerr.KindInternal, err, "hash password")
	}

	user := User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return User{}, "", err
	}
	if err := s.accounts.CreateAccount(ctx, user.ID, s.currency); err != nil {
		return User{}, "", err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return User{}, "", err
	}

	s.log.Info().Str("username", username).Str("account_id", user.ID.String()).Msg("user registered")
	return user, token, nil
}

// Login verifies credentials and issues a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (User, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return User{}, "", traideerr.Unauthorized("invalid username or password")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, "", traideerr.Unauthorized("invalid username or password")
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Resolve validates a bearer token and returns the account ID it names.
func (s *Service) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, traideerr.Unauthorized("missing token")
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, traideerr.Unauthorized("invalid or expired token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, traideerr.Unauthorized("invalid token claims")
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, traideerr.Unauthorized("invalid token subject")
	}

	if _, err := s.users.GetUserByID(ctx, accountID); err != nil {
		return uuid.Nil, traideerr.NotFound("user")
	}
	return accountID, nil
}

// GetUser returns a user by account ID.
func (s *Service) GetUser(ctx context.Context, accountID uuid.UUID) (User, error) {
	return s.users.GetUserByID(ctx, accountID)
}

func (s *Service) issueToken(accountID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", traideerr.Wrap(traideerr.KindInternal, err, "sign token")
	}
	return token, nil
}
