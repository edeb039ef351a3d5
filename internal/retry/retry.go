package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is the retry schedule applied at one call site.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
	Delay       time.Duration `yaml:"delay" toml:"delay"`
	Backoff     bool          `yaml:"backoff" toml:"backoff"` // linear growth: attempt * Delay
}

// Attempts returns the effective attempt count (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// DelayAfter returns the wait that follows the given failed attempt.
func (p Policy) DelayAfter(attempt int) time.Duration {
	if p.Backoff {
		return time.Duration(attempt) * p.Delay
	}
	return p.Delay
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds or the policy is exhausted. The attempt
// number passed to fn starts at 1. A cancelled context stops the loop
// during the wait between attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.DelayAfter(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after attempt %d: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}
