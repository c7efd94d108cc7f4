// Package middleware provides the HTTP middleware stack: authentication with
// session liveness, role authorization, rate limiting, and request logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tinytulsi/mart-backend/internal/api"
	"github.com/tinytulsi/mart-backend/internal/auth"
	appctx "github.com/tinytulsi/mart-backend/internal/context"
	"github.com/tinytulsi/mart-backend/internal/metrics"
)

// AuthMiddleware validates session tokens on protected routes. Beyond the
// signature check it touches the session row, so a token whose session was
// revoked or idle past the timeout is rejected even while the JWT itself is
// still within its lifetime.
type AuthMiddleware struct {
	tokens   *auth.TokenService
	sessions *auth.SessionManager
}

// NewAuthMiddleware creates an AuthMiddleware
func NewAuthMiddleware(tokens *auth.TokenService, sessions *auth.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// tokenFromRequest reads the session token from the cookie, falling back to
// an Authorization bearer header for non-browser clients
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Authenticate validates the token and the session behind it, refreshing the
// session's last-active timestamp
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			api.WriteError(w, http.StatusUnauthorized, auth.CodeAuthTokenMissing, "Authentication token is required", nil)
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid or expired token", nil)
			return
		}

		if _, err := m.sessions.TouchAndValidate(r.Context(), token, time.Now().UTC()); err != nil {
			if errors.Is(err, auth.ErrSessionExpired) {
				metrics.SessionsRevokedTotal.WithLabelValues("expired").Inc()
				api.WriteError(w, http.StatusUnauthorized, auth.CodeSessionExpired, "Session expired due to inactivity", nil)
				return
			}
			if errors.Is(err, auth.ErrSessionNotFound) {
				api.WriteError(w, http.StatusUnauthorized, auth.CodeAuthTokenInvalid, "Invalid or expired token", nil)
				return
			}
			api.WriteError(w, http.StatusInternalServerError, auth.CodeInternalError, "An unexpected error occurred", nil)
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, appctx.EmailKey, claims.Email)
		ctx = context.WithValue(ctx, appctx.RoleKey, claims.Role)
		ctx = context.WithValue(ctx, appctx.SessionTokenKey, token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole guards a subtree behind a role set by Authenticate
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := appctx.ExtractRole(r.Context())
			if !ok || got != role {
				api.WriteError(w, http.StatusForbidden, auth.CodeForbidden, "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
