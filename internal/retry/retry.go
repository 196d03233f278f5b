// Package retry provides bounded retry with backoff for outbound calls.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts is the number of retries after the first call (0 = no retry).
	MaxAttempts int
	// InitialDelay is the initial delay between retries.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases.
	Multiplier float64
	// Jitter adds up to 50% randomness to each delay.
	Jitter bool
	// Retryable decides whether an error should trigger a retry.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// Do executes fn with the retry policy.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.MaxAttempts <= 0 {
		return fn()
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
			case <-time.After(p.wait(delay)):
			}

			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts+1, lastErr)
}

func (p Policy) wait(delay time.Duration) time.Duration {
	if !p.Jitter || delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

// Exponential creates an exponential backoff retry policy.
func Exponential(maxAttempts int, initial time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Linear creates a linear retry policy with fixed delays.
func Linear(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}
