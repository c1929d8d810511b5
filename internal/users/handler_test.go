package users_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gestion-utilisateurs/gestion/internal/auth"
	"github.com/gestion-utilisateurs/gestion/internal/rbac"
	"github.com/gestion-utilisateurs/gestion/internal/users"
)

// authStub resolves fixed tokens to fixed accounts.
type authStub struct {
	sessions map[string]auth.User
}

func (s *authStub) WithTx(ctx context.Context, fn func(context.Context, auth.TxRepository) error) error {
	return errors.New("not supported")
}

func (s *authStub) GetSessionByToken(ctx context.Context, token string) (*auth.SessionUser, error) {
	user, ok := s.sessions[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &auth.SessionUser{
		Session: auth.Session{UserID: user.ID, Token: token, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
		User:    user,
	}, nil
}

func (s *authStub) DeactivateSession(ctx context.Context, token string) (int64, error) {
	return 0, auth.ErrNotFound
}

func (s *authStub) RecordAttempt(ctx context.Context, log auth.LoginLog) error { return nil }

func (s *authStub) GetUserWithRoles(ctx context.Context, userID int64) (*auth.User, []string, error) {
	return nil, nil, auth.ErrNotFound
}

func (s *authStub) ListLogsByUser(ctx context.Context, userID int64, limit int) ([]auth.LoginLog, error) {
	return nil, nil
}

type permsStub struct {
	perms map[int64][]rbac.Permission
}

func (s *permsStub) UserPermissions(ctx context.Context, userID int64) ([]rbac.Permission, error) {
	return s.perms[userID], nil
}

func (s *permsStub) AssignRole(ctx context.Context, userID, roleID int64) error { return nil }
func (s *permsStub) RemoveRole(ctx context.Context, userID, roleID int64) error { return nil }

func allUserPerms() []rbac.Permission {
	return []rbac.Permission{
		{Name: "users.delete", Resource: "users", Action: "delete"},
		{Name: "users.read", Resource: "users", Action: "read"},
		{Name: "users.write", Resource: "users", Action: "write"},
	}
}

func newTestRouter(t *testing.T, repo users.RepositoryPort) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authRepo := &authStub{sessions: map[string]auth.User{
		"tok-admin": {ID: 1, Email: "admin@example.com", IsActive: true},
		"tok-basic": {ID: 2, Email: "basic@example.com", IsActive: true},
	}}
	authService := auth.NewService(authRepo, nil, auth.ServiceConfig{})
	guard := auth.Middleware{Service: authService, Logger: logger}

	permsService := rbac.NewService(&permsStub{perms: map[int64][]rbac.Permission{1: allUserPerms()}}, nil, logger)

	handler := users.NewHandler(logger, users.NewService(repo), permsService, guard)
	r := chi.NewRouter()
	r.Route("/api/users", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	payload := map[string]any{}
	if res.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	}
	return res, payload
}

func TestListRequiresReadPermission(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(3))

	res, _ := doJSON(t, router, http.MethodGet, "/api/users", "", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res, payload := doJSON(t, router, http.MethodGet, "/api/users", "tok-basic", "")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "Permission refusée", payload["error"])

	res, payload = doJSON(t, router, http.MethodGet, "/api/users?page=1&limit=2", "tok-admin", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, payload["users"].([]any), 2)
	pagination := payload["pagination"].(map[string]any)
	require.Equal(t, float64(3), pagination["total"])
	require.Equal(t, float64(2), pagination["totalPages"])
}

func TestDeleteSelfForbidden(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(3))

	res, payload := doJSON(t, router, http.MethodDelete, "/api/users/1", "tok-admin", "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "Vous ne pouvez pas supprimer votre propre compte", payload["error"])
}

func TestDeleteUser(t *testing.T) {
	repo := newMemoryRepo(3)
	router := newTestRouter(t, repo)

	res, payload := doJSON(t, router, http.MethodDelete, "/api/users/2", "tok-admin", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "Utilisateur supprimé", payload["message"])
	require.Len(t, repo.users, 2)

	res, payload = doJSON(t, router, http.MethodDelete, "/api/users/99", "tok-admin", "")
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "Utilisateur non trouvé", payload["error"])
}

func TestUpdateUser(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(3))

	res, payload := doJSON(t, router, http.MethodPut, "/api/users/2", "tok-admin", `{"nom":"Martin","actif":false}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "Utilisateur mis à jour", payload["message"])
	user := payload["user"].(map[string]any)
	require.Equal(t, "Martin", user["nom"])
	require.Equal(t, false, user["actif"])

	res, _ = doJSON(t, router, http.MethodPut, "/api/users/99", "tok-admin", `{"actif":true}`)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestListUserPermissions(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo(3))

	res, payload := doJSON(t, router, http.MethodGet, "/api/users/1/permissions", "tok-admin", "")
	require.Equal(t, http.StatusOK, res.Code)
	perms := payload["permissions"].([]any)
	require.Len(t, perms, 3)
	first := perms[0].(map[string]any)
	require.Equal(t, "users", first["ressource"])
	require.Equal(t, "delete", first["action"])

	// An account without grants yields an empty list, not an error.
	res, payload = doJSON(t, router, http.MethodGet, "/api/users/2/permissions", "tok-admin", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, payload["permissions"])
}
