// package retry implements retry-with-backoff and timeout racing for
// outbound provider calls.
//
// Whether a failure is retried is a pure function of its error
// classification: sentinel errors from [shared] marking "not found",
// "not authorized" and friends are terminal, everything else is assumed
// transient. On exhaustion the last underlying error is returned so callers
// see the root cause rather than a generic wrapper.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/airwave/internal/shared"
)

// Policy contains retry and backoff tuning for one provider.
type Policy struct {
	MaxRetries int           // Additional attempts after the first (default 3)
	BaseDelay  time.Duration // Delay before the first retry (default 500ms)
	DelayCap   time.Duration // Ceiling on the exponential backoff (default 8s)
}

// DefaultPolicy returns the fallback tuning used when a provider has no
// configured override.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, DelayCap: 8 * time.Second}
}

// normalize fills zero fields with the defaults.
func (p Policy) normalize() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.DelayCap <= 0 {
		p.DelayCap = d.DelayCap
	}
	return p
}

// Backoff returns the delay before retry attempt n (1-based):
// min(BaseDelay * 2^(n-1), DelayCap).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.DelayCap {
			return p.DelayCap
		}
	}
	if d > p.DelayCap {
		return p.DelayCap
	}
	return d
}

// Terminal reports whether err must not be retried.
//
// Provider responses meaning "not found", "not authorized", "invalid grant"
// or "quota exceeded" will not change on a second attempt; neither will a
// rejected CSRF state or a cancelled context.
func Terminal(err error) bool {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrNotAuthorized),
		errors.Is(err, shared.ErrReauthRequired),
		errors.Is(err, shared.ErrCsrfMismatch),
		errors.Is(err, shared.ErrQuotaExceeded),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// Do executes op, retrying transient failures up to p.MaxRetries times with
// exponential backoff. Terminal errors return immediately without consuming
// retry budget. The zero value of T is returned alongside any error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalize()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry aborted: %w", lastErr)
			case <-timer.C:
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if Terminal(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, lastErr
}

// RaceWithTimeout runs op concurrently with a timer of duration d; whichever
// completes first wins. The losing branch is not cancelled at the transport
// level beyond context cancellation, so a late result may still arrive on the
// internal channel; it is discarded there and never escapes to the caller.
func RaceWithTimeout[T any](ctx context.Context, d time.Duration, msg string, op func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		result T
		err    error
	}

	// Buffered so the late branch never blocks after the timer fires.
	done := make(chan outcome, 1)

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	go func() {
		result, err := op(callCtx)
		done <- outcome{result: result, err: err}
	}()

	var zero T
	select {
	case o := <-done:
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w: %s after %s", shared.ErrTimeout, msg, d)
	}
}
