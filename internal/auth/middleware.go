package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/consulthub/internal/apperror"
	"github.com/sakif/consulthub/internal/cache"
	"github.com/sakif/consulthub/internal/model"
)

// TokenHeader carries the session token. TokenQueryParam is the fallback
// for clients that cannot set headers.
const (
	TokenHeader     = "X-Api-Token"
	TokenQueryParam = "api_key"
)

// contextKey is unexported so no other package can collide with, or
// forge, the values stored here.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// UserLookup resolves the username a session points to.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// RequireAuth rejects requests without a live session and attaches the
// resolved user and token to the request context.
//
//	no token                    → 401 "No API Authentication Token"
//	token unknown or expired    → 401 "Invalid Token"
//	session user since deleted  → 401 "Invalid Token"
//	cache or store unavailable  → 500
func RequireAuth(sessions cache.SessionStore, users UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "No API Authentication Token")
				return
			}

			username, ok, err := sessions.Get(r.Context(), token)
			if err != nil {
				logger.Error("session lookup failed", slog.String("error", err.Error()))
				writeAuthError(w, http.StatusInternalServerError, "An internal error occurred")
				return
			}
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Invalid Token")
				return
			}

			user, err := users.GetUserByUsername(r.Context(), username)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeAuthError(w, http.StatusUnauthorized, "Invalid Token")
					return
				}
				logger.Error("session user lookup failed",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError, "An internal error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// TokenFromRequest reads the header first, then the query parameter.
func TokenFromRequest(r *http.Request) string {
	if tok := r.Header.Get(TokenHeader); tok != "" {
		return tok
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// UserFromContext returns the authenticated user, or (nil, false) outside
// RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// TokenFromContext returns the session token RequireAuth accepted.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey).(string)
	return tok, ok && tok != ""
}

// WithUser stores user and token in ctx the same way RequireAuth does.
// Handler tests use it to skip the session round trip.
func WithUser(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}
