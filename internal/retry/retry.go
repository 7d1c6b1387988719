package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls Do. Attempts are numbered from 1; after a failed attempt n
// (other than the last) Do waits Backoff(n).
type Policy struct {
	MaxAttempts int
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	Backoff func(attempt int) time.Duration
}

// Exponential waits base * 2^attempt.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempt budget
// runs out or ctx is done. The last error from fn is returned, unwrapped from
// Permanent.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w (after %d attempts: %v)", ctx.Err(), attempt, err)
		}
		if attempt == attempts {
			break
		}

		if p.Backoff != nil {
			if werr := wait(ctx, p.Backoff(attempt)); werr != nil {
				return fmt.Errorf("%w (after %d attempts: %v)", werr, attempt, err)
			}
		}
	}
	return err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
