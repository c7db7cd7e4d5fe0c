package auth

import (
	"errors"

	"github.com/codeboard/earlyaccess/internal/users"
)

var (
	// ErrValidation indicates malformed signup input; nothing was written.
	ErrValidation = errors.New("auth: validation failed")
	// ErrMissingEmail indicates an identity provider profile without an email address.
	ErrMissingEmail = errors.New("auth: identity profile has no email")
)

// MinPasswordLength is the only password strength rule.
const MinPasswordLength = 6

// PasswordCost is the bcrypt work factor for stored password hashes.
const PasswordCost = 10

// TierPolicy derives a tier hint from an email address.
type TierPolicy func(email string) users.Tier

// DetectTier is the default tier hint. Every address qualifies for RESEARCHER
// while early access is open; a domain-based rule can replace it via WithTierPolicy.
func DetectTier(email string) users.Tier {
	return users.TierResearcher
}

// earlyAccessTier is assigned to every account created during early access.
// New OAuth accounts receive it regardless of the tier hint.
const earlyAccessTier = users.TierResearcher

// SignupInput carries a local signup request.
type SignupInput struct {
	Email    string
	Password string
	Name     string
	// EmailOptIn defaults to true when nil.
	EmailOptIn *bool
}

// SignupResult is the outcome of a local signup. AlreadyExists marks the
// idempotent duplicate case; ID is empty then.
type SignupResult struct {
	ID            string
	Email         string
	AlreadyExists bool
}

// LoginResult is a successful local login.
type LoginResult struct {
	User  *users.User
	Token string
}
