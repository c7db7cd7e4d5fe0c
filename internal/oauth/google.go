// Package oauth talks to the Google identity provider and guards the
// browser round trip with single-use state values.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var defaultGoogleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ErrExchange wraps failures while trading an authorization code for a profile.
var ErrExchange = errors.New("oauth: code exchange failed")

// Profile is the verified identity returned by the provider.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleConfig describes the registered Google OAuth client. A zero Endpoint
// and an empty UserInfoURL default to Google's production URLs.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// GoogleProvider implements the authorization-code flow against Google.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewGoogleProvider constructs a GoogleProvider. A nil client gets a 10 second timeout.
func NewGoogleProvider(cfg GoogleConfig, client *http.Client) *GoogleProvider {
	if cfg.Endpoint == (oauth2.Endpoint{}) {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultGoogleScopes
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		client:      client,
	}
}

// AuthCodeURL returns the consent page URL. An empty state is omitted.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange trades code for an access token and reads the userinfo profile.
// A profile without email is returned as-is; callers decide how to treat it.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return p.fetchProfile(ctx, token)
}

func (p *GoogleProvider) fetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: build userinfo request: %v", ErrExchange, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read userinfo: %v", ErrExchange, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Profile{}, fmt.Errorf("%w: userinfo returned %d", ErrExchange, res.StatusCode)
	}

	var info userInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, fmt.Errorf("%w: decode userinfo: %v", ErrExchange, err)
	}
	if info.Sub == "" {
		return Profile{}, fmt.Errorf("%w: userinfo without subject", ErrExchange)
	}
	return Profile{
		Subject:       info.Sub,
		Email:         strings.TrimSpace(info.Email),
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
