package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// BackoffOptions configures RetryBackoff. The delay before attempt n is
// min(InitialDelay * Factor^(n-1), MaxDelay) plus a uniform jitter from
// JitterRange.
type BackoffOptions struct {
	MaxTries     int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
}

// DefaultBackoff matches the retry policy applied to extraction and
// embedding service calls: five attempts, exponential delay capped at
// sixteen seconds, one to three seconds of jitter.
func DefaultBackoff() BackoffOptions {
	return BackoffOptions{
		MaxTries:     5,
		InitialDelay: time.Second,
		Factor:       2,
		MaxDelay:     16 * time.Second,
		JitterMin:    time.Second,
		JitterMax:    3 * time.Second,
	}
}

// RetryBackoff calls fn until it succeeds, the attempt budget is exhausted,
// or ctx is done. Between attempts it sleeps with exponential backoff plus
// jitter. Returns ctx.Err() on cancellation, otherwise the last error.
func RetryBackoff[T any](ctx context.Context, opts BackoffOptions, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxTries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err

		if attempt == maxTries {
			break
		}

		delay := opts.InitialDelay
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * opts.Factor)
			if opts.MaxDelay > 0 && delay >= opts.MaxDelay {
				delay = opts.MaxDelay
				break
			}
		}
		if opts.JitterMax > opts.JitterMin {
			delay += opts.JitterMin + rand.N(opts.JitterMax-opts.JitterMin)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
