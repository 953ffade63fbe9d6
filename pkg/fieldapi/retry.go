package fieldapi

import (
	"context"
	"math"
	"time"
)

// RetryPolicy defines retry behavior for outbound API calls. Backoff is a
// pure function of the attempt counter; no shared mutable state.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// BaseDelay is the first backoff delay
	BaseDelay time.Duration
	// Multiplier grows the delay per attempt
	Multiplier float64
}

// NewRetryPolicy creates a retry policy with exponential backoff.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Multiplier: 2.0,
	}
}

// Delay returns the backoff delay for a given attempt (0-based):
// BaseDelay * Multiplier^attempt.
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(float64(rp.BaseDelay) * math.Pow(rp.Multiplier, float64(attempt)))
}

// sleeper abstracts backoff and throttle pauses so tests can observe them
// without real time passing.
type sleeper func(ctx context.Context, d time.Duration) error

// defaultSleeper waits with context cancellation.
func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
