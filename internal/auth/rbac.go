package auth

import (
	"net/http"
)

// Roles carried in access tokens.
const (
	// RolePublisher may publish newsletter issues.
	RolePublisher = "publisher"
	// RoleAdmin may publish and manage delivery of any issue.
	RoleAdmin = "admin"
)

// ValidRole reports whether role is one this service issues tokens for.
func ValidRole(role string) bool {
	return role == RolePublisher || role == RoleAdmin
}

// RequireRole rejects requests whose token role is not in roles: 401 when
// no identity is present, 403 otherwise. It must run after JWTAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if _, ok := allowed[role]; !ok {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
