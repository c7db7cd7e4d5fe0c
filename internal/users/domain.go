package users

import (
	"context"
	"time"
)

// Tier is the coarse membership level gating features elsewhere in the product.
type Tier string

const (
	TierCommunity  Tier = "COMMUNITY"
	TierResearcher Tier = "RESEARCHER"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierCommunity || t == TierResearcher
}

// rank orders tiers for upgrade decisions.
func (t Tier) rank() int {
	switch t {
	case TierResearcher:
		return 2
	case TierCommunity:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether t is a strictly higher tier than other.
func (t Tier) Outranks(other Tier) bool {
	return t.rank() > other.rank()
}

// AuthProvider records which path created or last touched a user.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
)

// User represents an early-access account.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	Name           string
	DisplayName    string
	ProfileImage   string
	Tier           Tier
	AuthProvider   AuthProvider
	ProviderUserID string
	EmailVerified  bool
	EmailOptIn     bool
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can sign in with local credentials.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// Public is the projection of a User safe to return to clients.
type Public struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Name          string       `json:"name,omitempty"`
	DisplayName   string       `json:"displayName,omitempty"`
	ProfileImage  string       `json:"profileImage,omitempty"`
	Tier          Tier         `json:"tier"`
	AuthProvider  AuthProvider `json:"authProvider"`
	EmailVerified bool         `json:"emailVerified"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() Public {
	return Public{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		DisplayName:   u.DisplayName,
		ProfileImage:  u.ProfileImage,
		Tier:          u.Tier,
		AuthProvider:  u.AuthProvider,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// Store persists users. Email uniqueness is enforced by the implementation:
// Create returns shared.ErrDuplicate when the email is taken, and lookups
// return shared.ErrNotFound when nothing matches.
type Store interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}
