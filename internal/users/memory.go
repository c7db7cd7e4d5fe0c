package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeboard/earlyaccess/internal/shared"
)

// MemoryStore is an in-process Store used by tests and local runs without Postgres.
// Records are copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// Create inserts user unless its email is already taken.
func (m *MemoryStore) Create(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[user.Email]; exists {
		return shared.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.byID[user.ID] = clone(user)
	m.byEmail[user.Email] = user.ID
	return nil
}

// FindByEmail returns a copy of the user with the given email.
func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clone(m.byID[id]), nil
}

// FindByID returns a copy of the user with the given id.
func (m *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clone(user), nil
}

// Update replaces the stored record, keeping email and creation time.
func (m *MemoryStore) Update(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[user.ID]
	if !ok {
		return shared.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	next := clone(user)
	next.Email = current.Email
	next.CreatedAt = current.CreatedAt
	m.byID[user.ID] = next
	return nil
}

// Delete removes the user with the given id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(m.byEmail, user.Email)
	delete(m.byID, id)
	return nil
}

// Len reports how many users are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func clone(u *User) *User {
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
