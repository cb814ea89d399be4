// Package retry provides a retry-with-backoff combinator shared by the event
// bus consumers and other delivery loops.
//
// The backoff schedule is a discrete list of delays; when the number of
// attempts exceeds the schedule length the last delay repeats. This matches
// the platform-wide delivery policy (1s/5s/15s by default).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Schedule holds the delay applied after each failed attempt. The last
	// entry repeats if MaxAttempts exceeds the schedule length.
	Schedule []time.Duration
}

// DefaultPolicy returns the platform delivery policy: 3 attempts with
// 1s/5s/15s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Schedule:    []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
	}
}

// delay returns the backoff after the given failed attempt (1-based).
func (p Policy) delay(attempt int) time.Duration {
	if len(p.Schedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Schedule) {
		idx = len(p.Schedule) - 1
	}
	return p.Schedule[idx]
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// OnRetry is invoked after each failed attempt, before the backoff sleep.
type OnRetry func(attempt int, err error)

// Do runs fn until it succeeds, the policy is exhausted, or ctx is cancelled.
// On exhaustion it returns an *ExhaustedError wrapping the last failure; on
// cancellation it returns the context error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry OnRetry) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}
