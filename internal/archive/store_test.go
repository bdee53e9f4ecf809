package archive

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		typ  string
	}{
		{"empty type defaults to local", ""},
		{"explicit local", "local"},
		{"unsupported type defaults to local", "gcs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(context.Background(), Config{Type: tt.typ, Path: t.TempDir()}, zerolog.Nop())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, ok := store.(*LocalStore); !ok {
				t.Errorf("New: got %T, want *LocalStore", store)
			}
		})
	}
}
