package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/oxsidee/traidetrain/internal/identity"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// UserStore implements identity.UserStore on Postgres.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, user identity.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		// Unique violation on username surfaces as a conflict.
		if strings.Contains(err.Error(), "users_username_key") {
			return traideerr.New(traideerr.KindConflict, "username %q is taken", user.Username)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (identity.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	))
}

func (s *UserStore) GetUserByID(ctx context.Context, id uuid.UUID) (identity.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`,
		id,
	))
}

func (s *UserStore) scanUser(row *sql.Row) (identity.User, error) {
	var user identity.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, traideerr.NotFound("user")
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}
