// Package retry wraps an operation with exponential backoff and jitter.
//
// Cancellation is consulted before every attempt: both the context and an
// optional caller-supplied check (the task registry's cancellation flag).
// Callers classify which failures deserve another attempt; by default
// everything retries except context cancellation.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Defaults applied when Options leave the fields zero.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
)

// Options tunes a Do call.
type Options struct {
	// MaxAttempts is the total number of tries (default 3).
	MaxAttempts int

	// InitialDelay is the base backoff before the second attempt (default 1s).
	// Attempt n sleeps InitialDelay * 2^(n-1) * (1 + rand[0,0.2]).
	InitialDelay time.Duration

	// Description names the operation in log lines.
	Description string

	// CancelCheck runs before each attempt. A non-nil error aborts the whole
	// call immediately, propagated unchanged.
	CancelCheck func() error

	// Retryable decides whether an attempt's failure is worth retrying.
	// Nil treats every failure as retriable.
	Retryable func(error) bool

	Logger *slog.Logger
}

// Do runs op up to MaxAttempts times. The last error is returned when all
// attempts fail; non-retriable errors propagate unchanged on first sight.
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.CancelCheck != nil {
			if err := opts.CancelCheck(); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if opts.Retryable != nil && !opts.Retryable(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}

		delay := backoff(opts.InitialDelay, attempt)
		logger.Warn("Operation failed, retrying",
			"operation", opts.Description,
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff computes initial * 2^(attempt-1) with up to +20% jitter.
func backoff(initial time.Duration, attempt int) time.Duration {
	delay := float64(initial) * float64(int64(1)<<(attempt-1))
	delay *= 1 + rand.Float64()*0.2
	return time.Duration(delay)
}
