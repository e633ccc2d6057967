package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/records-collector/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored here.
type contextKey string

const userIDKey contextKey = "userID"

// IdentityResolver turns a bearer token into the ID of an active user.
//
// Implementations return an error wrapping apperror.ErrUnauthorized for bad
// tokens or unknown users and apperror.ErrForbidden for inactive accounts.
// Any other error is a server failure.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RequireAuth enforces bearer authentication on protected routes.
//
// It reads "Authorization: Bearer <jwt>", asks the resolver for the user, and
// stores the user ID in the request context. Failures stop the chain with a
// JSON error body:
//   - missing/invalid/expired token, unknown user → 401 + WWW-Authenticate
//   - inactive user                               → 403
//   - resolver failure (e.g. database down)       → 500
func RequireAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Not authenticated")
				return
			}

			userID, err := resolver.Resolve(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, apperror.ErrForbidden):
				deny(w, http.StatusForbidden, "forbidden", "Inactive user")
				return
			case errors.Is(err, apperror.ErrUnauthorized):
				unauthorized(w, "Could not validate credentials")
				return
			default:
				slog.Error("resolving bearer token", slog.String("error", err.Error()))
				deny(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. Exposed for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) on routes not behind RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// bearerToken extracts the token from the Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	deny(w, http.StatusUnauthorized, "unauthorized", message)
}

func deny(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
