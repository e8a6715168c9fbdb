package httpserver

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/metrics"
	"chatspace/internal/security"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// Verifier resolves a bearer credential to a live identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*security.Claims, *domain.User, error)
}

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the user to the
// context. Credentials of identities that no longer exist are rejected.
func AuthMiddleware(auth Verifier, m *metrics.Metrics, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				m.AuthFailed("http")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			_, user, err := auth.Verify(r.Context(), tokenStr)
			if err != nil {
				m.AuthFailed("http")
				log.Debug("auth: credential rejected", zap.String("path", r.URL.Path), zap.Error(err))
				if statusFor(err) == http.StatusUnauthorized {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
					return
				}
				writeError(w, log, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
