package internal

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy holds bounded exponential backoff parameters for one external
// call type. Each call site gets its own instance rather than ad hoc loops.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// Jitter is the fraction of the delay randomized per sleep (0.0-1.0).
	Jitter float64
}

// DefaultRetryPolicy returns the policy used for external calls unless a
// component overrides it: 3 attempts, doubling delay from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts are
// exhausted. Transience is decided by IsTransient; permanent errors
// propagate immediately. Sleeps honor ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		sleep := delay + p.jitter(delay)
		if p.MaxDelay > 0 && sleep > p.MaxDelay {
			sleep = p.MaxDelay
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (p RetryPolicy) jitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	span := float64(d) * p.Jitter
	return time.Duration((rand.Float64() - 0.5) * 2 * span)
}
