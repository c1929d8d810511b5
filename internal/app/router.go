package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestion-utilisateurs/gestion/internal/auth"
	"github.com/gestion-utilisateurs/gestion/internal/observability"
	"github.com/gestion-utilisateurs/gestion/internal/platform/httpx"
	"github.com/gestion-utilisateurs/gestion/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Pool         *pgxpool.Pool
	AuthHandler  *auth.Handler
	UsersHandler *users.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		var now time.Time
		if err := params.Pool.QueryRow(r.Context(), `SELECT NOW()`).Scan(&now); err != nil {
			params.Logger.Error("health check", slog.Any("error", err))
			httpx.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "Database connection error"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"ok": true, "now": now})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
	})
	r.Route("/api/users", func(r chi.Router) {
		params.UsersHandler.MountRoutes(r)
	})

	return r
}
