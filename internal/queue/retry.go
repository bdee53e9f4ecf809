package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// GrowthFactor is the multiplier applied to the delay on each retry.
const GrowthFactor = 1.5

// RetryStrategy implements capped exponential backoff with jitter for
// delivery task retries: delay(n) = min(Base * 1.5^n, Max), then jittered.
type RetryStrategy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// NewRetryStrategy creates a RetryStrategy with the given budget and window.
func NewRetryStrategy(maxRetries int, base, maxDelay time.Duration) *RetryStrategy {
	return &RetryStrategy{
		MaxRetries: maxRetries,
		Base:       base,
		Max:        maxDelay,
	}
}

// ShouldRetry returns true if a task that has already been retried
// retryCount times may be rescheduled once more.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// Delay returns the un-jittered delay for the given retry count.
func (r *RetryStrategy) Delay(retryCount int) time.Duration {
	d := float64(r.Base) * math.Pow(GrowthFactor, float64(retryCount))
	if d > float64(r.Max) || math.IsInf(d, 1) {
		return r.Max
	}
	return time.Duration(d)
}

// NextBackoff returns the delay for the given retry count with jitter
// applied. Jitter is calculated as: delay * (0.5 + rand * 0.5).
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	jitter := 0.5 + rand.Float64()*0.5
	d := time.Duration(float64(r.Delay(retryCount)) * jitter)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
