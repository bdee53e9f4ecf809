package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter-dispatch/internal/metrics"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	userRoleKey contextKey = "user_role"
)

// UserFromContext retrieves the user ID from the request context.
// Returns uuid.Nil if no user is set.
func UserFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// RoleFromContext retrieves the user role from the request context.
// Returns an empty string if no role is set.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(userRoleKey).(string); ok {
		return role
	}
	return ""
}

// WithUser stores an authenticated identity in ctx.
func WithUser(ctx context.Context, userID uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, userRoleKey, role)
}

// JWTAuth returns an HTTP middleware that validates JWT Bearer tokens and
// stores the caller's user id and role in the request context.
func JWTAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deny := func(msg string) {
				metrics.APIAuthFailuresTotal.Inc()
				writeAuthError(w, http.StatusUnauthorized, msg)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				deny("authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				deny("invalid authorization format, expected Bearer <token>")
				return
			}

			tokenStr := parts[1]
			if tokenStr == "" {
				deny("empty token")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenStr)
			if err != nil {
				deny("invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				deny("invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, claims.Role)))
		})
	}
}
