package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/types"
)

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// RoleReader reads a user's current role from the store.
type RoleReader interface {
	CurrentRole(ctx context.Context, userID string) (types.Role, error)
}

// Authenticate requires a valid bearer token and binds its user id to the
// request context.
func Authenticate(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				WriteError(w, apperr.ErrTokenInvalid)
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil {
				WriteError(w, apperr.ErrTokenInvalid)
				return
			}
			userID := claims.UserID
			if userID == "" {
				userID = claims.Subject
			}
			if userID == "" {
				WriteError(w, apperr.ErrTokenInvalid)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(r.Context(), userID)))
		})
	}
}

// RequireRole admits the request only when the caller's stored role is role.
// The token's role claim is ignored so downgrades apply immediately.
func RequireRole(roles RoleReader, role types.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				WriteError(w, apperr.ErrUnauthorized)
				return
			}
			current, err := roles.CurrentRole(r.Context(), userID)
			if err != nil {
				if _, classified := apperr.From(err); !classified {
					logger.WarnContext(r.Context(), "role lookup failed", "user_id", userID, "error", err)
				}
				WriteError(w, apperr.ErrUnauthorized)
				return
			}
			if current != role {
				WriteError(w, apperr.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
