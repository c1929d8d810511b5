package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gestion-utilisateurs/gestion/internal/auth"
	"github.com/gestion-utilisateurs/gestion/internal/platform/httpx"
	"github.com/gestion-utilisateurs/gestion/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	perms   *rbac.Service
	guard   auth.Middleware
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, perms *rbac.Service, guard auth.Middleware) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		perms:   perms,
		guard:   guard,
		rbac:    rbac.Middleware{Service: perms, Logger: logger},
	}
}

// MountRoutes registers user routes. Every route authenticates first, then
// authorizes against its (resource, action) pair.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireAuth)
	r.With(h.rbac.RequirePermission("users", "read")).Get("/", h.listUsers)
	r.With(h.rbac.RequirePermission("users", "read")).Get("/{id}/permissions", h.listPermissions)
	r.With(h.rbac.RequirePermission("users", "write")).Put("/{id}", h.updateUser)
	r.With(h.rbac.RequirePermission("users", "delete")).Delete("/{id}", h.deleteUser)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, pagination, err := h.service.List(r.Context(), page, limit)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, user := range users {
		out = append(out, userJSON(user, true))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      out,
		"pagination": pagination,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound, "Utilisateur non trouvé")
		return
	}
	perms, err := h.perms.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("list user permissions", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type updateRequest struct {
	LastName  *string `json:"nom"`
	FirstName *string `json:"prenom"`
	IsActive  bool    `json:"actif"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound, "Utilisateur non trouvé")
		return
	}
	var body updateRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation, "")
		return
	}
	user, err := h.service.Update(r.Context(), id, UpdateInput{
		LastName:  body.LastName,
		FirstName: body.FirstName,
		IsActive:  body.IsActive,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound, "Utilisateur non trouvé")
			return
		}
		h.logger.Error("update user", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Utilisateur mis à jour",
		"user": map[string]any{
			"id":                user.ID,
			"email":             user.Email,
			"nom":               user.LastName,
			"prenom":            user.FirstName,
			"actif":             user.IsActive,
			"date_modification": user.UpdatedAt,
		},
	})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound, "Utilisateur non trouvé")
		return
	}
	actor := auth.UserFromContext(r.Context())
	if actor != nil && actor.ID == id {
		httpx.RespondError(w, httpx.ErrValidation, "Vous ne pouvez pas supprimer votre propre compte")
		return
	}
	user, err := h.service.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound, "Utilisateur non trouvé")
			return
		}
		h.logger.Error("delete user", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Utilisateur supprimé",
		"user":    userJSON(*user, false),
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func userJSON(u User, withRoles bool) map[string]any {
	out := map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"nom":           u.LastName,
		"prenom":        u.FirstName,
		"actif":         u.IsActive,
		"date_creation": u.CreatedAt,
	}
	if withRoles {
		roles := u.Roles
		if roles == nil {
			roles = []string{}
		}
		out["roles"] = roles
	}
	return out
}
