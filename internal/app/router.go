package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/codeboard/earlyaccess/internal/auth"
	"github.com/codeboard/earlyaccess/internal/contributions"
	"github.com/codeboard/earlyaccess/internal/observability"
	"github.com/codeboard/earlyaccess/internal/platform/httpx"
	"github.com/codeboard/earlyaccess/jobs"
)

const pingMessage = "Early Access Backend is running"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	AuthHandler          *auth.Handler
	OAuthHandler         *auth.OAuthHandler
	ContributionsHandler *contributions.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
	Now                  func() time.Time
}

type pingResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRouter constructs the chi.Router with the gateway defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	now := params.Now
	if now == nil {
		now = time.Now
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, pingResponse{Success: true, Message: pingMessage, Timestamp: now().UTC()})
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.OAuthHandler != nil {
		params.OAuthHandler.MountRoutes(r)
	}
	if params.ContributionsHandler != nil {
		params.ContributionsHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
