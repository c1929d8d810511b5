package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gestion-utilisateurs/gestion/internal/platform/httpx"
)

type userContextKey struct{}
type tokenContextKey struct{}

// ContextWithUser stores the authenticated user in context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// TokenFromContext extracts the bearer token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

// BearerToken extracts the token from the Authorization header. A missing
// "Bearer " prefix is tolerated and the raw header value used instead.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

// Middleware guards protected routes by resolving the bearer token to an
// account before the handler runs.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAuth rejects requests whose token does not resolve to a usable
// session.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized, "Token manquant")
			return
		}
		user, err := m.Service.ResolveToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				httpx.RespondError(w, httpx.ErrUnauthorized, "")
				return
			}
			if m.Logger != nil {
				m.Logger.Error("resolve token", slog.Any("error", err))
			}
			httpx.RespondError(w, err, "")
			return
		}
		ctx := ContextWithUser(r.Context(), user)
		ctx = context.WithValue(ctx, tokenContextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
