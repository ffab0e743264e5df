package retryutil

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const defaultRetryDelay = 2 * time.Second

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: Do stops immediately and returns
// the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to attempts times, sleeping delay between tries. The last
// error is returned once the budget is spent.
func Do(ctx context.Context, logger *slog.Logger, name string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Info(name+"_retry_ok", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if logger != nil {
			logger.Warn(name+"_attempt_failed", "attempt", attempt, "error", err.Error())
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return last
}
