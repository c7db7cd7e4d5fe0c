package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nonceSize = 24
	macSize   = 16
)

// ErrStateInvalid is returned for unknown, expired, forged or reused state values.
var ErrStateInvalid = errors.New("oauth: invalid state")

// StateStore issues single-use state values for the OAuth round trip and keeps
// them in Redis until the callback consumes them or they expire.
type StateStore struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
}

// NewStateStore constructs a StateStore.
func NewStateStore(client *redis.Client, secret string, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{client: client, secret: []byte(secret), ttl: ttl}
}

// Issue creates and stores a fresh state value.
func (s *StateStore) Issue(ctx context.Context) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("oauth: state nonce: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(append(nonce, s.sign(nonce)...))
	if err := s.client.Set(ctx, s.key(state), "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("oauth: store state: %w", err)
	}
	return state, nil
}

// Consume verifies state and deletes it so it cannot be replayed.
func (s *StateStore) Consume(ctx context.Context, state string) error {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil || len(raw) != nonceSize+macSize {
		return ErrStateInvalid
	}
	if !hmac.Equal(raw[nonceSize:], s.sign(raw[:nonceSize])) {
		return ErrStateInvalid
	}
	deleted, err := s.client.Del(ctx, s.key(state)).Result()
	if err != nil {
		return fmt.Errorf("oauth: consume state: %w", err)
	}
	if deleted == 0 {
		return ErrStateInvalid
	}
	return nil
}

func (s *StateStore) sign(nonce []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(nonce)
	return mac.Sum(nil)[:macSize]
}

func (s *StateStore) key(state string) string {
	return "oauth:state:" + state
}
