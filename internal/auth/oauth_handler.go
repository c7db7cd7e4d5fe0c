package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/codeboard/earlyaccess/internal/oauth"
	"github.com/codeboard/earlyaccess/internal/observability"
	"github.com/codeboard/earlyaccess/internal/platform/httpx"
	"github.com/codeboard/earlyaccess/internal/users"
)

// Callback error codes appended to the frontend redirect as ?error=<code>.
const (
	CodeOAuthDenied = "oauth_denied"
	CodeMissingCode = "missing_code"
	CodeNoEmail     = "no_email"
	CodeServerError = "oauth_server_error"
)

// IdentityProvider is the OAuth collaborator: it builds consent URLs and
// exchanges authorization codes for verified profiles.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Profile, error)
}

// StateVerifier issues and consumes single-use OAuth state values.
type StateVerifier interface {
	Issue(ctx context.Context) (string, error)
	Consume(ctx context.Context, state string) error
}

// OAuthHandler serves the browser-driven Google sign-in round trip. Results
// travel back to the frontend as redirect query parameters because no JSON
// channel exists at that point of the flow.
type OAuthHandler struct {
	logger   *slog.Logger
	service  *Service
	provider IdentityProvider
	states   StateVerifier
	frontend *url.URL
	metrics  *observability.Metrics
}

// OAuthHandlerParams groups OAuthHandler dependencies. States may be nil to
// run without state verification.
type OAuthHandlerParams struct {
	Logger      *slog.Logger
	Service     *Service
	Provider    IdentityProvider
	States      StateVerifier
	FrontendURL string
	Metrics     *observability.Metrics
}

// NewOAuthHandler constructs an OAuthHandler.
func NewOAuthHandler(params OAuthHandlerParams) (*OAuthHandler, error) {
	frontend, err := url.Parse(params.FrontendURL)
	if err != nil || frontend.Scheme == "" || frontend.Host == "" {
		return nil, fmt.Errorf("auth: invalid frontend url %q", params.FrontendURL)
	}
	if frontend.Path == "" {
		frontend.Path = "/"
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &OAuthHandler{
		logger:   logger,
		service:  params.Service,
		provider: params.Provider,
		states:   params.States,
		frontend: frontend,
		metrics:  params.Metrics,
	}
	return h, nil
}

// MountRoutes registers the Google start and callback routes.
func (h *OAuthHandler) MountRoutes(r chi.Router) {
	r.Get("/api/oauth/google", h.handleStart)
	r.Get("/api/oauth/google/callback", h.handleCallback)
}

func (h *OAuthHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	state := ""
	if h.states != nil {
		var err error
		state, err = h.states.Issue(r.Context())
		if err != nil {
			h.logger.Error("oauth start", slog.Any("error", err))
			httpx.JSON(w, http.StatusInternalServerError, httpx.Message{Message: "Google OAuth setup error."})
			return
		}
	}
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

func (h *OAuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Info("oauth denied by provider", slog.String("error", providerErr))
		h.fail(w, r, CodeOAuthDenied)
		return
	}
	code := query.Get("code")
	if code == "" {
		h.fail(w, r, CodeMissingCode)
		return
	}
	if h.states != nil {
		if err := h.states.Consume(r.Context(), query.Get("state")); err != nil {
			h.logger.Warn("oauth state rejected", slog.Any("error", err))
			h.fail(w, r, CodeServerError)
			return
		}
	}

	profile, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange", slog.Any("error", err))
		h.fail(w, r, CodeServerError)
		return
	}

	user, err := h.service.ReconcileOAuth(r.Context(), users.ProviderGoogle, profile)
	if err != nil {
		if errors.Is(err, ErrMissingEmail) {
			h.fail(w, r, CodeNoEmail)
			return
		}
		h.logger.Error("oauth reconcile", slog.Any("error", err))
		h.fail(w, r, CodeServerError)
		return
	}

	token, err := h.service.IssueToken(user)
	if err != nil {
		h.logger.Error("oauth issue token", slog.Any("error", err))
		h.fail(w, r, CodeServerError)
		return
	}

	h.metrics.AuthEvent("oauth", "success")
	h.redirect(w, r, url.Values{"token": {token}, "tier": {string(user.Tier)}})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, code string) {
	h.metrics.AuthEvent("oauth", code)
	h.redirect(w, r, url.Values{"error": {code}})
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	target := *h.frontend
	query := target.Query()
	for key, values := range params {
		query[key] = values
	}
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
