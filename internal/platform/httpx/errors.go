package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// Authorization header parsing failures. Callers report each one with its own message.
var (
	ErrAuthHeaderMissing = errors.New("authorization header missing")
	ErrTokenMissing      = errors.New("token missing")
	ErrBadScheme         = errors.New("unsupported authorization scheme")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrAuthHeaderMissing
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", ErrTokenMissing
	}
	if !strings.EqualFold(fields[0], "Bearer") {
		return "", ErrBadScheme
	}
	return fields[1], nil
}
