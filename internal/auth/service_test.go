package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/codeboard/earlyaccess/internal/auth"
	"github.com/codeboard/earlyaccess/internal/oauth"
	"github.com/codeboard/earlyaccess/internal/shared"
	"github.com/codeboard/earlyaccess/internal/users"
)

func boolPtr(v bool) *bool { return &v }

// ============================================================================
// LOCAL SIGNUP
// ============================================================================

func TestSignupCreatesResearcherWithHashedPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Signup(ctx, auth.SignupInput{Email: "a@x.com", Password: "secret1", Name: "Ada"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "a@x.com", result.Email)

	stored, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, stored.Tier)
	assert.Equal(t, users.ProviderLocal, stored.AuthProvider)
	assert.True(t, stored.EmailOptIn)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordCost, cost)
}

func TestSignupHonoursExplicitOptOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, auth.SignupInput{Email: "quiet@x.com", Password: "secret1", EmailOptIn: boolPtr(false)})
	require.NoError(t, err)

	stored, err := f.store.FindByEmail(ctx, "quiet@x.com")
	require.NoError(t, err)
	assert.False(t, stored.EmailOptIn)
}

func TestSignupDuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Signup(ctx, auth.SignupInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	second, err := f.service.Signup(ctx, auth.SignupInput{Email: "a@x.com", Password: "another1"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Empty(t, second.ID)

	stored, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))
}

func TestSignupValidationTouchesNoStore(t *testing.T) {
	cases := []struct {
		name string
		in   auth.SignupInput
	}{
		{name: "empty email", in: auth.SignupInput{Email: "", Password: "secret1"}},
		{name: "blank email", in: auth.SignupInput{Email: "   ", Password: "secret1"}},
		{name: "short password", in: auth.SignupInput{Email: "a@x.com", Password: "12345"}},
		{name: "short multibyte password", in: auth.SignupInput{Email: "a@x.com", Password: "ééé"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens, err := auth.NewTokenService(testSecret, time.Hour)
			require.NoError(t, err)
			store := failingStore{err: errors.New("store must not be called")}
			service := auth.NewService(store, tokens, nil, nil)

			_, err = service.Signup(context.Background(), tc.in)
			assert.ErrorIs(t, err, auth.ErrValidation)
		})
	}
}

func TestSignupCountsPasswordRunes(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Signup(context.Background(), auth.SignupInput{Email: "u@x.com", Password: "éééééé"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
}

func TestSignupStoreFailureIsUpstreamError(t *testing.T) {
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	down := errors.New("connection refused")
	service := auth.NewService(failingStore{err: down}, tokens, nil, nil)

	_, err = service.Signup(context.Background(), auth.SignupInput{Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, auth.ErrValidation)
}

func TestSignupWelcomeFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	result, err := f.service.Signup(context.Background(), auth.SignupInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 1, f.notifier.count())
}

// ============================================================================
// LOCAL LOGIN
// ============================================================================

func TestLoginStampsLastLoginAndIssuesValidToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Signup(ctx, auth.SignupInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	result, err := f.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, result.User.LastLoginAt)
	assert.True(t, result.User.LastLoginAt.Equal(f.now))

	stored, err := f.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(f.now))

	claims, err := f.tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.UserID)
	assert.Equal(t, stored.Tier, claims.Tier)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Signup(ctx, auth.SignupInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = f.service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-1", Email: "oauth@x.com"})
	require.NoError(t, err)

	_, wrongPassword := f.service.Login(ctx, "a@x.com", "wrong")
	_, unknownEmail := f.service.Login(ctx, "nobody@x.com", "secret1")
	_, oauthOnly := f.service.Login(ctx, "oauth@x.com", "secret1")

	for _, err := range []error{wrongPassword, unknownEmail, oauthOnly} {
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		assert.Equal(t, shared.ErrInvalidCredentials.Error(), err.Error())
	}
}

func TestLoginStoreFailureIsNotInvalidCredentials(t *testing.T) {
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	service := auth.NewService(failingStore{err: errors.New("db down")}, tokens, nil, nil)

	_, err = service.Login(context.Background(), "a@x.com", "secret1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

// ============================================================================
// OAUTH RECONCILIATION
// ============================================================================

func TestReconcileOAuthCreatesResearcherAndWelcomesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := oauth.Profile{Subject: "g-123", Email: "new@x.com", EmailVerified: true, Name: "New User", Picture: "https://img/p.png"}

	user, err := f.service.ReconcileOAuth(ctx, users.ProviderGoogle, profile)
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, user.Tier)
	assert.Equal(t, users.ProviderGoogle, user.AuthProvider)
	assert.Equal(t, "g-123", user.ProviderUserID)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "New User", user.Name)
	assert.Equal(t, "New User", user.DisplayName)
	assert.Equal(t, "https://img/p.png", user.ProfileImage)
	assert.Empty(t, user.PasswordHash)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, user.LastLoginAt.Equal(f.now))

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, welcomeCall{Email: "new@x.com", Name: "New User"}, f.notifier.calls[0])

	// A second callback for the same identity updates without another mail.
	_, err = f.service.ReconcileOAuth(ctx, users.ProviderGoogle, profile)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileOAuthNameFallsBackToEmail(t *testing.T) {
	f := newFixture(t)

	user, err := f.service.ReconcileOAuth(context.Background(), users.ProviderGoogle, oauth.Profile{Subject: "g-9", Email: "anon@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "anon@x.com", user.Name)
	assert.Equal(t, "anon@x.com", user.DisplayName)
	assert.False(t, user.EmailVerified)
}

func TestReconcileOAuthNewUserIgnoresCommunityHint(t *testing.T) {
	f := newFixture(t, auth.WithTierPolicy(func(string) users.Tier { return users.TierCommunity }))

	user, err := f.service.ReconcileOAuth(context.Background(), users.ProviderGoogle, oauth.Profile{Subject: "g-1", Email: "c@x.com"})
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, user.Tier)
}

func TestReconcileOAuthUpgradesCommunityWithoutMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := &users.User{Email: "old@x.com", Name: "Old", Tier: users.TierCommunity, AuthProvider: users.ProviderLocal, PasswordHash: "hash"}
	require.NoError(t, f.store.Store.Create(ctx, existing))

	user, err := f.service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-77", Email: "old@x.com", EmailVerified: true, Name: "Ignored"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, users.TierResearcher, user.Tier)
	assert.Equal(t, users.ProviderGoogle, user.AuthProvider)
	assert.Equal(t, "g-77", user.ProviderUserID)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "Old", user.Name)
	assert.Equal(t, "hash", user.PasswordHash)
	require.NotNil(t, user.LastLoginAt)
	assert.Equal(t, 0, f.notifier.count())

	stored, err := f.store.FindByEmail(ctx, "old@x.com")
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, stored.Tier)
}

func TestReconcileOAuthNeverDowngrades(t *testing.T) {
	f := newFixture(t, auth.WithTierPolicy(func(string) users.Tier { return users.TierCommunity }))
	ctx := context.Background()
	require.NoError(t, f.store.Store.Create(ctx, &users.User{Email: "r@x.com", Tier: users.TierResearcher, AuthProvider: users.ProviderLocal}))

	user, err := f.service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-2", Email: "r@x.com"})
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, user.Tier)
}

func TestReconcileOAuthCommunityStaysWithCommunityHint(t *testing.T) {
	f := newFixture(t, auth.WithTierPolicy(func(string) users.Tier { return users.TierCommunity }))
	ctx := context.Background()
	require.NoError(t, f.store.Store.Create(ctx, &users.User{Email: "c@x.com", Tier: users.TierCommunity, AuthProvider: users.ProviderLocal}))

	user, err := f.service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-3", Email: "c@x.com"})
	require.NoError(t, err)
	assert.Equal(t, users.TierCommunity, user.Tier)
}

func TestReconcileOAuthMissingEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ReconcileOAuth(context.Background(), users.ProviderGoogle, oauth.Profile{Subject: "g-1"})
	assert.ErrorIs(t, err, auth.ErrMissingEmail)
	assert.Equal(t, 0, f.store.writes())
	assert.Equal(t, 0, f.store.reads)
}

func TestReconcileOAuthWelcomeFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue unavailable")

	user, err := f.service.ReconcileOAuth(context.Background(), users.ProviderGoogle, oauth.Profile{Subject: "g-1", Email: "n@x.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, 1, f.notifier.count())
}

// racingStore reports "not found" on the first lookup even though the row
// exists, simulating a concurrent callback creating the account first.
type racingStore struct {
	users.Store
	missedOnce bool
}

func (s *racingStore) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if !s.missedOnce {
		s.missedOnce = true
		return nil, shared.ErrNotFound
	}
	return s.Store.FindByEmail(ctx, email)
}

func TestReconcileOAuthConcurrentCreateFallsBackToUpdate(t *testing.T) {
	ctx := context.Background()
	inner := users.NewMemoryStore()
	require.NoError(t, inner.Create(ctx, &users.User{Email: "race@x.com", Tier: users.TierCommunity, AuthProvider: users.ProviderLocal}))
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	service := auth.NewService(&racingStore{Store: inner}, tokens, notifier, nil)

	user, err := service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-5", Email: "race@x.com"})
	require.NoError(t, err)
	assert.Equal(t, users.TierResearcher, user.Tier)
	assert.Equal(t, "g-5", user.ProviderUserID)
	assert.Equal(t, 1, inner.Len())
	assert.Equal(t, 0, notifier.count())
}

// ============================================================================
// CURRENT USER
// ============================================================================

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.ReconcileOAuth(ctx, users.ProviderGoogle, oauth.Profile{Subject: "g-1", Email: "me@x.com"})
	require.NoError(t, err)
	token, err := f.service.IssueToken(user)
	require.NoError(t, err)

	got, err := f.service.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.service.CurrentUser(ctx, "not-a-token")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	require.NoError(t, f.store.Delete(ctx, user.ID))
	_, err = f.service.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
