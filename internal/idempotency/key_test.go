package idempotency

import (
	"errors"
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "publish-2024-01", true},
		{"single char", "x", true},
		{"exactly fifty", strings.Repeat("k", 50), true},
		{"fifty multibyte chars", strings.Repeat("é", 50), true},
		{"empty", "", false},
		{"fifty one", strings.Repeat("k", 51), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected valid key, got %v", err)
				}
				if key.String() != tt.input {
					t.Errorf("expected %q, got %q", tt.input, key)
				}
				return
			}
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}
