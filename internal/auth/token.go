package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeboard/earlyaccess/internal/shared"
	"github.com/codeboard/earlyaccess/internal/users"
)

// DefaultTokenTTL is the lifetime of issued session tokens.
const DefaultTokenTTL = time.Hour

// Claims are the signed contents of a session token.
type Claims struct {
	UserID string     `json:"userId"`
	Tier   users.Tier `json:"tier"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 session tokens. The secret is fixed
// for the life of the process; changing it invalidates every outstanding token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService. A zero ttl selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source used for issuing and validating tokens.
func (t *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *t
	cp.now = now
	return &cp
}

// TTL exposes the configured token lifetime.
func (t *TokenService) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token binding userID and tier.
func (t *TokenService) Issue(userID string, tier users.Tier) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue token without user id")
	}
	now := t.now()
	claims := &Claims{
		UserID: userID,
		Tier:   tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm and expiry. Every failure wraps shared.ErrInvalidToken.
func (t *TokenService) Validate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, shared.ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" || !claims.Tier.Valid() {
		return nil, shared.ErrInvalidToken
	}
	return claims, nil
}
