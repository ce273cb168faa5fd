package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-dispatch/internal/logging"
)

// Policy controls Retry. The delay doubles after every failed attempt, capped
// at MaxDelay when it is set.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx is done.
func Retry(ctx context.Context, logger *logging.Logger, p Policy, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			logger.Errorf("Attempt %d/%d failed permanently: %v", attempt, attempts, perm.err)
			return perm.err
		}
		lastErr = err
		logger.Errorf("Attempt %d/%d failed: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
