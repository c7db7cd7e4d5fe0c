package contributions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codeboard/earlyaccess/internal/platform/httpx"
	"github.com/codeboard/earlyaccess/internal/shared"
	"github.com/codeboard/earlyaccess/internal/users"
)

const (
	msgSubmitted     = "Contribution submitted successfully!"
	msgTextRequired  = "Text is required."
	msgFewLanguages  = "At least 2 languages must be selected."
	msgSubmitFailed  = "Could not submit contribution."
	msgStatsFailed   = "Could not fetch contribution statistics."
	msgInvalidToken  = "Invalid or expired token"
	msgInvalidFormat = "Invalid request body."
)

// Authenticator resolves a bearer token to the stored account.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (*users.User, error)
}

// Handler wires HTTP endpoints for contributions.
type Handler struct {
	logger  *slog.Logger
	service *Service
	auth    Authenticator
}

// NewHandler constructs a Handler. auth may be nil, in which case every
// submission is anonymous.
func NewHandler(logger *slog.Logger, service *Service, auth Authenticator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, auth: auth}
}

// MountRoutes registers contribution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/contributions", func(r chi.Router) {
		r.Post("/submit", h.handleSubmit)
		r.Get("/stats", h.handleStats)
	})
	// Older clients submit to the examples endpoint.
	r.Post("/api/examples", h.handleSubmit)
}

type submitRequest struct {
	Text      string          `json:"text"`
	Languages json.RawMessage `json:"languages"`
	Context   string          `json:"context"`
	Region    string          `json:"region"`
	Platform  string          `json:"platform"`
	Age       string          `json:"age"`
	UserEmail string          `json:"userEmail"`
	UserName  string          `json:"userName"`
}

// languages tolerates a missing or non-array value, which then fails the
// language count check instead of the body decode.
func (req submitRequest) languages() []string {
	var out []string
	if err := json.Unmarshal(req.Languages, &out); err != nil {
		return nil
	}
	return out
}

type submitResponse struct {
	Message      string          `json:"message"`
	Contribution submittedRecord `json:"contribution"`
}

type submittedRecord struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgInvalidFormat})
		return
	}

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	c, err := h.service.Submit(r.Context(), Input{
		Text:      req.Text,
		Languages: req.languages(),
		Context:   req.Context,
		Region:    req.Region,
		Platform:  req.Platform,
		Age:       req.Age,
		UserEmail: req.UserEmail,
		UserName:  req.UserName,
	}, caller)
	switch {
	case errors.Is(err, ErrTextRequired):
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgTextRequired})
	case errors.Is(err, ErrTooFewLanguages):
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgFewLanguages})
	case err != nil:
		h.logger.Error("submit contribution", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, httpx.Message{Message: msgSubmitFailed})
	default:
		httpx.JSON(w, http.StatusCreated, submitResponse{
			Message:      msgSubmitted,
			Contribution: submittedRecord{ID: c.ID, SubmittedAt: c.SubmittedAt},
		})
	}
}

// caller resolves the optional bearer token. A request without an
// Authorization header is anonymous; a header that does not resolve to an
// account is rejected.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	token, err := httpx.BearerToken(r)
	if errors.Is(err, httpx.ErrAuthHeaderMissing) || h.auth == nil {
		return nil, true
	}
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, httpx.Message{Message: msgInvalidToken})
		return nil, false
	}
	user, err := h.auth.CurrentUser(r.Context(), token)
	switch {
	case errors.Is(err, shared.ErrInvalidToken), errors.Is(err, shared.ErrNotFound):
		httpx.JSON(w, http.StatusUnauthorized, httpx.Message{Message: msgInvalidToken})
		return nil, false
	case err != nil:
		h.logger.Error("resolve contributor", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, httpx.Message{Message: msgSubmitFailed})
		return nil, false
	}
	return user, true
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("contribution stats", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, httpx.Message{Message: msgStatsFailed})
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
