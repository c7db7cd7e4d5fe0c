package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/codeboard/earlyaccess/internal/observability"
	"github.com/codeboard/earlyaccess/internal/platform/httpx"
	"github.com/codeboard/earlyaccess/internal/shared"
	"github.com/codeboard/earlyaccess/internal/users"
)

// Client-facing messages. Login failures share one message whatever the cause.
const (
	msgSignupCreated     = "Sign-up successful!"
	msgSignupExists      = "Email already registered."
	msgSignupInvalid     = "Valid email and a password of at least 6 characters are required."
	msgSignupFailed      = "An error occurred during sign-up."
	msgLoginMissing      = "Email and password are required."
	msgLoginInvalid      = "Invalid email or password."
	msgLoginFailed       = "An error occurred during login."
	msgAuthHeaderMissing = "Authorization header missing"
	msgTokenMissing      = "Token missing"
	msgTokenInvalid      = "Invalid or expired token"
	msgUserNotFound      = "User not found"
	msgWhoamiFailed      = "Could not fetch user."
)

// Handler wires HTTP endpoints for local authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers signup, login and whoami routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/api/auth/login", h.handleLogin)
	r.Get("/api/oauth/user", h.handleWhoami)
}

type signupRequest struct {
	Email      string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required,min=6"`
	Name       string `json:"name"`
	EmailOptIn *bool  `json:"emailOptIn"`
}

type signupCreatedResponse struct {
	Message string     `json:"message"`
	User    signupUser `json:"user"`
}

type signupUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type signupExistsResponse struct {
	Message       string `json:"message"`
	AlreadyExists bool   `json:"alreadyExists"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgSignupInvalid})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.metrics.AuthEvent("signup", "invalid")
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgSignupInvalid})
		return
	}

	result, err := h.service.Signup(r.Context(), SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		EmailOptIn: req.EmailOptIn,
	})
	switch {
	case errors.Is(err, ErrValidation):
		h.metrics.AuthEvent("signup", "invalid")
		httpx.JSON(w, http.StatusBadRequest, httpx.Message{Message: msgSignupInvalid})
	case err != nil:
		h.metrics.AuthEvent("signup", "error")
		h.logger.Error("signup", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, httpx.Message{Message: msgSignupFailed})
	case result.AlreadyExists:
		h.metrics.AuthEvent("signup", "exists")
		httpx.JSON(w, http.StatusOK, signupExistsResponse{Message: msgSignupExists, AlreadyExists: true})
	default:
		h.metrics.AuthEvent("signup", "created")
		httpx.JSON(w, http.StatusCreated, signupCreatedResponse{
			Message: msgSignupCreated,
			User:    signupUser{ID: result.ID, Email: result.Email},
		})
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginUser struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Tier  users.Tier `json:"tier"`
}

type loginData struct {
	User  loginUser `json:"user"`
	Token string    `json:"token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, msgLoginMissing)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.metrics.AuthEvent("login", "invalid")
		httpx.Fail(w, http.StatusBadRequest, msgLoginMissing)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.metrics.AuthEvent("login", "rejected")
			httpx.Fail(w, http.StatusUnauthorized, msgLoginInvalid)
			return
		}
		h.metrics.AuthEvent("login", "error")
		h.logger.Error("login", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, msgLoginFailed)
		return
	}

	h.metrics.AuthEvent("login", "success")
	httpx.OK(w, loginData{
		User: loginUser{
			ID:    result.User.ID,
			Email: result.User.Email,
			Name:  result.User.Name,
			Tier:  result.User.Tier,
		},
		Token: result.Token,
	})
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	token, err := httpx.BearerToken(r)
	switch {
	case errors.Is(err, httpx.ErrAuthHeaderMissing):
		h.metrics.AuthEvent("whoami", "no_header")
		httpx.Fail(w, http.StatusUnauthorized, msgAuthHeaderMissing)
		return
	case errors.Is(err, httpx.ErrTokenMissing):
		h.metrics.AuthEvent("whoami", "no_token")
		httpx.Fail(w, http.StatusUnauthorized, msgTokenMissing)
		return
	case err != nil:
		h.metrics.AuthEvent("whoami", "invalid")
		httpx.Fail(w, http.StatusUnauthorized, msgTokenInvalid)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), token)
	switch {
	case errors.Is(err, shared.ErrInvalidToken):
		h.metrics.AuthEvent("whoami", "invalid")
		httpx.Fail(w, http.StatusUnauthorized, msgTokenInvalid)
	case errors.Is(err, shared.ErrNotFound):
		h.metrics.AuthEvent("whoami", "not_found")
		httpx.Fail(w, http.StatusNotFound, msgUserNotFound)
	case err != nil:
		h.metrics.AuthEvent("whoami", "error")
		h.logger.Error("whoami", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, msgWhoamiFailed)
	default:
		h.metrics.AuthEvent("whoami", "success")
		httpx.OK(w, user.Public())
	}
}
