package contributions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local runs without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Contribution
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, c *Contribution) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now().UTC()
	}
	stored := *c
	stored.Languages = append([]string(nil), c.Languages...)
	s.mu.Lock()
	s.items = append(s.items, stored)
	s.mu.Unlock()
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// CountContributors implements Store.
func (s *MemoryStore) CountContributors(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range s.items {
		if c.UserEmail != "" {
			seen[c.UserEmail] = struct{}{}
		}
	}
	return len(seen), nil
}

// LanguageSets implements Store.
func (s *MemoryStore) LanguageSets(ctx context.Context) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sets := make([][]string, 0, len(s.items))
	for _, c := range s.items {
		sets = append(sets, append([]string(nil), c.Languages...))
	}
	return sets, nil
}

// All returns a copy of every stored contribution in insertion order.
func (s *MemoryStore) All() []Contribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Contribution(nil), s.items...)
}
