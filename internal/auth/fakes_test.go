package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codeboard/earlyaccess/internal/auth"
	"github.com/codeboard/earlyaccess/internal/users"
	_ "github.com/codeboard/earlyaccess/testing"
)

const testSecret = "test-secret"

type welcomeCall struct {
	Email string
	Name  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []welcomeCall
	err   error
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, email, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, welcomeCall{Email: email, Name: name})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// countingStore wraps a Store and counts every write and read.
type countingStore struct {
	users.Store
	mu      sync.Mutex
	creates int
	updates int
	reads   int
}

func (s *countingStore) Create(ctx context.Context, user *users.User) error {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.Store.Create(ctx, user)
}

func (s *countingStore) Update(ctx context.Context, user *users.User) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	return s.Store.Update(ctx, user)
}

func (s *countingStore) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.Store.FindByEmail(ctx, email)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates + s.updates
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s failingStore) Create(context.Context, *users.User) error { return s.err }
func (s failingStore) FindByEmail(context.Context, string) (*users.User, error) {
	return nil, s.err
}
func (s failingStore) FindByID(context.Context, string) (*users.User, error) { return nil, s.err }
func (s failingStore) Update(context.Context, *users.User) error            { return s.err }
func (s failingStore) Delete(context.Context, string) error                 { return s.err }

type fixture struct {
	store    *countingStore
	notifier *recordingNotifier
	tokens   *auth.TokenService
	service  *auth.Service
	now      time.Time
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	f := &fixture{
		store:    &countingStore{Store: users.NewMemoryStore()},
		notifier: &recordingNotifier{},
		tokens:   tokens,
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	opts = append([]auth.Option{auth.WithClock(func() time.Time { return f.now })}, opts...)
	f.service = auth.NewService(f.store, tokens, f.notifier, nil, opts...)
	return f
}
