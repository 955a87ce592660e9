package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy configures the retry combinator.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; each further
	// attempt doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff regardless of attempt count.
	MaxDelay time.Duration

	// Jitter adds up to ±25% randomness to each delay when true.
	Jitter bool

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, the policy is exhausted, the error is not
// retryable, or the context ends. The last error is wrapped with the
// attempt count. Transient provider failures (rate limits, timeouts) are
// the intended use; configuration errors should be rejected by the
// Retryable predicate so they fail fast.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, ErrBreakerOpen) {
			break
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			break
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}

	return fmt.Errorf("failed after %d attempt(s): %w", p.MaxAttempts, lastErr)
}

// delay computes the exponential backoff for the given zero-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	d := time.Duration(float64(p.BaseDelay) * float64(uint64(1)<<uint(attempt)))

	if p.Jitter {
		// #nosec G404 - weak RNG is fine for jitter
		j := time.Duration(rand.Float64() * float64(d) * 0.5)
		d = d + j - d/4
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
