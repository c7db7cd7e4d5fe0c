package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/codeboard/earlyaccess/internal/oauth"
	"github.com/codeboard/earlyaccess/internal/shared"
	"github.com/codeboard/earlyaccess/internal/users"
)

// Notifier delivers the welcome mail for new accounts. Delivery is best effort.
type Notifier interface {
	SendWelcome(ctx context.Context, email, name string) error
}

// Service reconciles identity assertions with the user store and issues tokens.
type Service struct {
	store      users.Store
	tokens     *TokenService
	notifier   Notifier
	logger     *slog.Logger
	detectTier TierPolicy
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithTierPolicy replaces DetectTier.
func WithTierPolicy(policy TierPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.detectTier = policy
		}
	}
}

// WithClock replaces the time source for lastLoginAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a new Service.
func NewService(store users.Store, tokens *TokenService, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      store,
		tokens:     tokens,
		notifier:   notifier,
		logger:     logger,
		detectTier: DetectTier,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a local account. A taken email is reported through
// SignupResult.AlreadyExists, never as an error.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if strings.TrimSpace(in.Email) == "" || utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, ErrValidation
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	optIn := true
	if in.EmailOptIn != nil {
		optIn = *in.EmailOptIn
	}
	user := &users.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Tier:         earlyAccessTier,
		AuthProvider: users.ProviderLocal,
		EmailOptIn:   optIn,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return &SignupResult{Email: in.Email, AlreadyExists: true}, nil
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	s.welcome(ctx, user)
	return &SignupResult{ID: user.ID, Email: user.Email}, nil
}

// Login verifies local credentials, stamps lastLoginAt and issues a token.
// Unknown email, password-less account and wrong password are all reported
// as shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			burnCompare(password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.HasPassword() {
		burnCompare(password)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("auth: stamp login: %w", err)
	}
	token, err := s.tokens.Issue(user.ID, user.Tier)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Token: token}, nil
}

// ReconcileOAuth maps a verified provider profile onto the user store.
// Existing accounts are updated and may be upgraded, never downgraded;
// new accounts get the early-access tier and one welcome mail.
func (s *Service) ReconcileOAuth(ctx context.Context, provider users.AuthProvider, profile oauth.Profile) (*users.User, error) {
	if strings.TrimSpace(profile.Email) == "" {
		return nil, ErrMissingEmail
	}
	hint := s.detectTier(profile.Email)

	existing, err := s.store.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return s.touchOAuthUser(ctx, existing, provider, profile, hint)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("auth: find user: %w", err)
	}

	now := s.now()
	displayName := profile.Name
	if displayName == "" {
		displayName = profile.Email
	}
	user := &users.User{
		Email:          profile.Email,
		Name:           displayName,
		DisplayName:    displayName,
		ProfileImage:   profile.Picture,
		Tier:           earlyAccessTier,
		AuthProvider:   provider,
		ProviderUserID: profile.Subject,
		EmailVerified:  profile.EmailVerified,
		EmailOptIn:     true,
		LastLoginAt:    &now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if !errors.Is(err, shared.ErrDuplicate) {
			return nil, fmt.Errorf("auth: create user: %w", err)
		}
		// A concurrent callback created the account first; fall back to the update path.
		existing, err := s.store.FindByEmail(ctx, profile.Email)
		if err != nil {
			return nil, fmt.Errorf("auth: find user after conflict: %w", err)
		}
		return s.touchOAuthUser(ctx, existing, provider, profile, hint)
	}
	s.welcome(ctx, user)
	return user, nil
}

func (s *Service) touchOAuthUser(ctx context.Context, user *users.User, provider users.AuthProvider, profile oauth.Profile, hint users.Tier) (*users.User, error) {
	now := s.now()
	user.AuthProvider = provider
	user.ProviderUserID = profile.Subject
	user.EmailVerified = profile.EmailVerified
	user.LastLoginAt = &now
	if hint.Outranks(user.Tier) {
		user.Tier = hint
	}
	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("auth: update user: %w", err)
	}
	return user, nil
}

// IssueToken signs a session token for user.
func (s *Service) IssueToken(user *users.User) (string, error) {
	return s.tokens.Issue(user.ID, user.Tier)
}

// CurrentUser resolves a bearer token to the stored user. It returns
// shared.ErrInvalidToken for bad tokens and shared.ErrNotFound when the
// account no longer exists.
func (s *Service) CurrentUser(ctx context.Context, token string) (*users.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return user, nil
}

func (s *Service) welcome(ctx context.Context, user *users.User) {
	if s.notifier == nil {
		return
	}
	name := user.Name
	if name == "" {
		name = user.Email
	}
	if err := s.notifier.SendWelcome(ctx, user.Email, name); err != nil {
		s.logger.Warn("welcome mail", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnCompare spends one bcrypt comparison so that unknown accounts take as
// long to reject as wrong passwords.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("early-access-placeholder"), PasswordCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
