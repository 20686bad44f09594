// Package retry implements the time-budgeted, interval-paced polling loop
// every action in internal/action wraps itself in, suitable for observing an
// eventually-consistent cluster.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashmap-kz/kscenario/internal/kduration"
	"github.com/hashmap-kz/kscenario/internal/recorder"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 200 * time.Millisecond
)

// Options configures a retry loop. The zero value is not usable directly;
// use DefaultOptions and override fields as needed.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	Recorder *recorder.Recorder
}

// DefaultOptions returns the engine's default timeout/interval pair.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// RetryTimeoutError is raised when the retry budget is exhausted. Cause is the
// last error observed from the thunk, if any.
type RetryTimeoutError struct {
	Timeout time.Duration
	Cause   error
}

func (e *RetryTimeoutError) Error() string {
	return fmt.Sprintf("Timed out after %s", kduration.Render(e.Timeout))
}

func (e *RetryTimeoutError) Unwrap() error {
	return e.Cause
}

// Until invokes thunk once unconditionally; if that fails and the remaining
// budget is large enough for at least one more attempt, it keeps invoking
// thunk every Interval until one succeeds or the deadline passes. No
// RetryStart/RetryAttempt/RetryEnd events are recorded unless a second
// attempt actually happens, so a Timeout smaller than Interval (including
// Timeout == 0) records nothing beyond the single call.
//
// The returned error is a *RetryTimeoutError wrapping the last observed failure
// once the budget is exhausted; a context cancellation mid-sleep is returned
// unwrapped.
func Until[T any](ctx context.Context, opts Options, thunk func(context.Context) (T, error)) (T, error) {
	deadline := time.Now().Add(opts.Timeout)

	val, err := thunk(ctx)
	if err == nil {
		return val, nil
	}

	lastErr := err
	attempt := 0
	started := false

	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		sleep := opts.Interval
		if remaining < sleep {
			sleep = remaining
		}
		if sleep < 0 {
			sleep = 0
		}
		if sleep >= remaining {
			break
		}

		// Only now do we know at least one retry attempt will actually run,
		// so RetryStart is deferred to here: it must appear iff a matching
		// RetryEnd will too (Timeout == 0, or a budget smaller than Interval,
		// both skip the loop body entirely and record neither).
		if !started {
			started = true
			if opts.Recorder != nil {
				opts.Recorder.RetryStart()
			}
		}

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			var zero T
			if opts.Recorder != nil {
				opts.Recorder.RetryEnd(attempt, false, recorder.RetryReasonTimeout, lastErr)
			}
			return zero, lastErr
		case <-time.After(sleep):
		}

		attempt++
		if opts.Recorder != nil {
			opts.Recorder.RetryAttempt(attempt)
		}

		val, err = thunk(ctx)
		if err == nil {
			if opts.Recorder != nil {
				opts.Recorder.RetryEnd(attempt, true, recorder.RetryReasonSuccess, nil)
			}
			return val, nil
		}
		lastErr = err
	}

	var zero T
	timeoutErr := &RetryTimeoutError{Timeout: opts.Timeout, Cause: lastErr}
	if attempt > 0 && opts.Recorder != nil {
		opts.Recorder.RetryEnd(attempt, false, recorder.RetryReasonTimeout, timeoutErr)
	}
	return zero, timeoutErr
}
