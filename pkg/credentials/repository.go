package credentials

import (
	"context"
	"sync"
)

// User is a stored account.
type User struct {
	Username     string
	PasswordHash string
}

// UserRepository persists accounts.
type UserRepository interface {
	// Get returns ErrUserNotFound when the username is unknown.
	Get(ctx context.Context, username string) (User, error)

	// Create stores a new account, or returns ErrUserExists.
	Create(ctx context.Context, user User) error
}

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]User)}
}

// Get implements UserRepository.
func (m *MemoryRepository) Get(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// Create implements UserRepository.
func (m *MemoryRepository) Create(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return ErrUserExists
	}
	m.users[user.Username] = user
	return nil
}
