package queue

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("Concurrency", func(t *testing.T) {
		if cfg.Concurrency != 4 {
			t.Errorf("DefaultConfig() Concurrency = %d, want 4", cfg.Concurrency)
		}
	})

	t.Run("IdleWait", func(t *testing.T) {
		want := 10 * time.Second
		if cfg.IdleWait != want {
			t.Errorf("DefaultConfig() IdleWait = %v, want %v", cfg.IdleWait, want)
		}
	})

	t.Run("ErrorWait", func(t *testing.T) {
		want := time.Second
		if cfg.ErrorWait != want {
			t.Errorf("DefaultConfig() ErrorWait = %v, want %v", cfg.ErrorWait, want)
		}
	})

	t.Run("ShutdownTimeout", func(t *testing.T) {
		want := 30 * time.Second
		if cfg.ShutdownTimeout != want {
			t.Errorf("DefaultConfig() ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, want)
		}
	})

	t.Run("Retry window", func(t *testing.T) {
		if cfg.MaxRetries != 10 {
			t.Errorf("DefaultConfig() MaxRetries = %d, want 10", cfg.MaxRetries)
		}
		if cfg.RetryBase != 30*time.Second || cfg.RetryMax != time.Hour {
			t.Errorf("DefaultConfig() retry window = %v..%v, want 30s..1h", cfg.RetryBase, cfg.RetryMax)
		}
	})
}
