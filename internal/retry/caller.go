// Package retry is the single place outbound calls acquire retry/backoff
// behavior. Callers wrap idempotent operations only; nothing here mutates
// shared state between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// ExhaustedError reports that an operation kept failing transiently until the
// attempt budget ran out. It wraps the last underlying failure.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes fn under the policy. Terminal errors surface immediately after a
// single attempt; transient errors are retried with backoff until MaxAttempts,
// then wrapped in an ExhaustedError.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !p.retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.Delay(attempt)
		if ferrors.GetRetryStrategy(err) == ferrors.RetryRateLimit {
			delay = min(3*delay, p.Max)
		}
		slog.Warn("retrying operation",
			logfields.Operation(op),
			logfields.Attempt(attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
		if p.OnRetry != nil {
			p.OnRetry(op, attempt)
		}
		if err := wait(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Op: op, Attempts: p.MaxAttempts, Err: lastErr}
}

// retryable applies the policy predicate, falling back to the error taxonomy.
func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Classify != nil {
		return p.Classify(err)
	}
	if ferrors.IsTransient(err) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

// wait sleeps for d or until the context is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
