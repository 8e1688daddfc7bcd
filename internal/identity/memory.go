package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// MemoryUserStore is the in-memory UserStore for tests and local runs.
type MemoryUserStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]User
	byName map[string]uuid.UUID
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:   make(map[uuid.UUID]User),
		byName: make(map[string]uuid.UUID),
	}
}

func (s *MemoryUserStore) CreateUser(ctx context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[user.Username]; exists {
		return traideerr.New(traideerr.KindConflict, "username %q is taken", user.Username)
	}
	s.byID[user.ID] = user
	s.byName[user.Username] = user.ID
	return nil
}

func (s *MemoryUserStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return User{}, traideerr.NotFound("user")
	}
	return s.byID[id], nil
}

func (s *MemoryUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return User{}, traideerr.NotFound("user")
	}
	return user, nil
}
