package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestJWTAuth(t *testing.T) {
	svc := newTestJWTService()
	userID := uuid.New()
	valid, err := svc.GenerateAccessToken(userID, RolePublisher)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser uuid.UUID
			var gotRole string
			handler := JWTAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserFromContext(r.Context())
				gotRole = RoleFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
				return
			}
			if gotUser != userID {
				t.Errorf("user = %s, want %s", gotUser, userID)
			}
			if gotRole != RolePublisher {
				t.Errorf("role = %q, want %q", gotRole, RolePublisher)
			}
		})
	}
}

func TestFromContext_Empty(t *testing.T) {
	ctx := context.Background()
	if got := UserFromContext(ctx); got != uuid.Nil {
		t.Errorf("UserFromContext() = %s, want nil uuid", got)
	}
	if got := RoleFromContext(ctx); got != "" {
		t.Errorf("RoleFromContext() = %q, want empty", got)
	}
}

func TestWithUser(t *testing.T) {
	id := uuid.New()
	ctx := WithUser(context.Background(), id, RoleAdmin)
	if UserFromContext(ctx) != id || RoleFromContext(ctx) != RoleAdmin {
		t.Errorf("WithUser did not round-trip identity")
	}
}
