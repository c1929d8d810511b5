package rbac

import (
	"log/slog"
	"net/http"

	"github.com/gestion-utilisateurs/gestion/internal/auth"
	"github.com/gestion-utilisateurs/gestion/internal/platform/httpx"
)

// Middleware wires authorization guards for HTTP handlers. It runs after
// the authentication middleware and never before it.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePermission ensures the authenticated account holds the exact
// (resource, action) permission.
func (m Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if user == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized, "")
				return
			}
			ok, err := m.Service.HasPermission(r.Context(), user.ID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("require permission", slog.String("resource", resource), slog.String("action", action), slog.Any("error", err))
				}
				httpx.RespondError(w, err, "")
				return
			}
			if !ok {
				httpx.RespondError(w, httpx.ErrForbidden, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
