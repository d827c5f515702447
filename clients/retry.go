package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zhuguadundan/videowhisper/errors"
)

// RetryPolicy drives retryWithSleep. Sleep is the fixed pause between
// attempts; Retryable decides whether an error is worth another attempt.
type RetryPolicy struct {
	MaxAttempts int
	Sleep       time.Duration
	Retryable   func(error) bool
}

// retryWithSleep runs op up to MaxAttempts times, sleeping on the injected
// clock between attempts so tests do not wait in real time.
func retryWithSleep[T any](ctx context.Context, clk clock.Clock, p RetryPolicy, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clk.After(p.Sleep):
			}
		}
		out, err := op()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
}

// sleepWithClock pauses on the injected clock, returning early if ctx ends.
// A non-positive duration is a no-op.
func sleepWithClock(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}

// retryableKind reports whether a vendor call failure is transient. Rejected
// URLs and bad credentials never heal on retry.
func retryableKind(err error) bool {
	switch errors.Kind(err) {
	case errors.KindNetwork, errors.KindVendorError, errors.KindVendorRateLimited, errors.KindTimeout:
		return true
	}
	return false
}
