package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gestion-utilisateurs/gestion/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     Middleware{Service: service, Logger: logger},
		validator: validator.New(),
	}
}

// Guard exposes the authentication middleware for other route groups.
func (h *Handler) Guard() Middleware {
	return h.guard
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth)
		r.Get("/profile", h.handleProfile)
		r.Post("/logout", h.handleLogout)
		r.Get("/logs", h.handleLogs)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string  `json:"email" validate:"required"`
	Password  string  `json:"password" validate:"required"`
	LastName  *string `json:"nom"`
	FirstName *string `json:"prenom"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation, "")
		return
	}
	result, err := h.service.Login(r.Context(), LoginInput{
		Email:     body.Email,
		Password:  body.Password,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			httpx.RespondError(w, httpx.ErrUnauthorized, "Email ou mot de passe incorrect")
		case errors.Is(err, ErrInactiveAccount):
			httpx.RespondError(w, httpx.ErrForbidden, "Compte inactif")
		default:
			h.logger.Error("login", slog.Any("error", err))
			httpx.RespondError(w, err, "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":   "Connexion réussie",
		"token":     result.Token,
		"user":      identityJSON(result.User),
		"expiresAt": result.ExpiresAt,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation, "")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation, "Email et mot de passe requis")
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:     body.Email,
		Password:  body.Password,
		LastName:  body.LastName,
		FirstName: body.FirstName,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.RespondError(w, httpx.ErrDuplicate, "Email déjà enregistré")
			return
		}
		h.logger.Error("register", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "Utilisateur créé avec succès",
		"user":    createdJSON(*user),
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	user, roles, err := h.service.Profile(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("profile", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	if roles == nil {
		roles = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":            user.ID,
			"email":         user.Email,
			"nom":           user.LastName,
			"prenom":        user.FirstName,
			"actif":         user.IsActive,
			"date_creation": user.CreatedAt,
			"roles":         roles,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	token := TokenFromContext(r.Context())
	err := h.service.Logout(r.Context(), token, *actor, r.RemoteAddr, r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			httpx.RespondError(w, httpx.ErrValidation, "Session non trouvée")
			return
		}
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Déconnecté avec succès"})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	actor := UserFromContext(r.Context())
	logs, err := h.service.Logs(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("logs", slog.Any("error", err))
		httpx.RespondError(w, err, "")
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, log := range logs {
		out = append(out, map[string]any{
			"id":              log.ID,
			"utilisateur_id":  log.UserID,
			"email_tentative": log.Email,
			"adresse_ip":      log.IP,
			"user_agent":      log.UserAgent,
			"succes":          log.Success,
			"message":         log.Message,
			"date_heure":      log.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": out})
}

func identityJSON(u User) map[string]any {
	return map[string]any{
		"id":     u.ID,
		"email":  u.Email,
		"nom":    u.LastName,
		"prenom": u.FirstName,
	}
}

func createdJSON(u User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"nom":           u.LastName,
		"prenom":        u.FirstName,
		"date_creation": u.CreatedAt,
	}
}
