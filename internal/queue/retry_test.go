package queue

import (
	"testing"
	"time"
)

func TestNewRetryStrategy(t *testing.T) {
	rs := NewRetryStrategy(5, 30*time.Second, time.Hour)

	if rs.MaxRetries != 5 {
		t.Errorf("NewRetryStrategy(5) MaxRetries = %d, want 5", rs.MaxRetries)
	}
	if rs.Base != 30*time.Second {
		t.Errorf("NewRetryStrategy() Base = %v, want 30s", rs.Base)
	}
	if rs.Max != time.Hour {
		t.Errorf("NewRetryStrategy() Max = %v, want 1h", rs.Max)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		retryCount int
		want       bool
	}{
		{
			name:       "first retry attempt",
			maxRetries: 5,
			retryCount: 0,
			want:       true,
		},
		{
			name:       "last allowed retry",
			maxRetries: 5,
			retryCount: 4,
			want:       true,
		},
		{
			name:       "retry count equals max retries",
			maxRetries: 5,
			retryCount: 5,
			want:       false,
		},
		{
			name:       "retry count exceeds max retries",
			maxRetries: 5,
			retryCount: 10,
			want:       false,
		},
		{
			name:       "zero max retries disables on first failure",
			maxRetries: 0,
			retryCount: 0,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRetryStrategy(tt.maxRetries, time.Second, time.Minute)
			got := rs.ShouldRetry(tt.retryCount)
			if got != tt.want {
				t.Errorf("ShouldRetry(%d) with maxRetries=%d: got %v, want %v",
					tt.retryCount, tt.maxRetries, got, tt.want)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	rs := NewRetryStrategy(10, 30*time.Second, time.Hour)

	tests := []struct {
		name       string
		retryCount int
		want       time.Duration
	}{
		{"first retry uses base", 0, 30 * time.Second},
		{"second retry grows by 1.5", 1, 45 * time.Second},
		{"third retry", 2, 67500 * time.Millisecond},
		{"large count is capped", 20, time.Hour},
		{"huge count does not overflow", 10000, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rs.Delay(tt.retryCount); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
			}
		})
	}
}

func TestDelay_NonDecreasing(t *testing.T) {
	rs := NewRetryStrategy(50, time.Second, 10*time.Minute)
	prev := time.Duration(0)
	for n := 0; n < 50; n++ {
		d := rs.Delay(n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", n, d, prev)
		}
		prev = d
	}
}

func TestNextBackoff(t *testing.T) {
	// Jitter formula: delay * (0.5 + rand * 0.5)
	// This means the result is in the range [delay*0.5, delay*1.0]
	rs := NewRetryStrategy(10, 30*time.Second, time.Hour)
	tests := []struct {
		name       string
		retryCount int
		wantMin    time.Duration
		wantMax    time.Duration
	}{
		{
			name:       "first retry (30s delay)",
			retryCount: 0,
			wantMin:    15 * time.Second,
			wantMax:    30 * time.Second,
		},
		{
			name:       "second retry (45s delay)",
			retryCount: 1,
			wantMin:    22500 * time.Millisecond,
			wantMax:    45 * time.Second,
		},
		{
			name:       "capped retry (1h delay)",
			retryCount: 30,
			wantMin:    30 * time.Minute,
			wantMax:    time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to verify jitter stays within range
			for i := 0; i < 100; i++ {
				got := rs.NextBackoff(tt.retryCount)
				if got < tt.wantMin {
					t.Errorf("NextBackoff(%d) iteration %d: got %v, below minimum %v",
						tt.retryCount, i, got, tt.wantMin)
				}
				if got > tt.wantMax {
					t.Errorf("NextBackoff(%d) iteration %d: got %v, above maximum %v",
						tt.retryCount, i, got, tt.wantMax)
				}
			}
		})
	}
}

func TestNextBackoff_ProducesVariation(t *testing.T) {
	rs := NewRetryStrategy(5, 30*time.Second, time.Hour)
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[rs.NextBackoff(0)] = true
	}
	if len(seen) < 2 {
		t.Errorf("NextBackoff() produced %d unique values over 100 calls, expected variation from jitter", len(seen))
	}
}

func TestNextBackoff_AlwaysPositive(t *testing.T) {
	rs := NewRetryStrategy(5, time.Nanosecond, time.Nanosecond)
	for i := 0; i < 100; i++ {
		if d := rs.NextBackoff(0); d <= 0 {
			t.Fatalf("NextBackoff() = %v, want positive", d)
		}
	}
}
