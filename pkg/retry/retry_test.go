package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Options{InitialDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("still broken")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, Options{MaxAttempts: 3, InitialDelay: time.Millisecond})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetriable(t *testing.T) {
	calls := 0
	invalid := errors.New("invalid request")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return invalid
	}, Options{
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, invalid) },
	})
	assert.ErrorIs(t, err, invalid)
	assert.Equal(t, 1, calls, "non-retriable errors must not be retried")
}

func TestDoChecksCancellationBeforeEachAttempt(t *testing.T) {
	t.Run("cancel check blocks first attempt", func(t *testing.T) {
		cancelled := errors.New("task cancelled")
		calls := 0
		err := Do(context.Background(), func(context.Context) error {
			calls++
			return nil
		}, Options{CancelCheck: func() error { return cancelled }})
		assert.ErrorIs(t, err, cancelled)
		assert.Equal(t, 0, calls)
	})

	t.Run("cancel check observed between attempts", func(t *testing.T) {
		cancelled := errors.New("task cancelled")
		calls := 0
		err := Do(context.Background(), func(context.Context) error {
			calls++
			return errors.New("transient")
		}, Options{
			InitialDelay: time.Millisecond,
			CancelCheck: func() error {
				if calls > 0 {
					return cancelled
				}
				return nil
			},
		})
		assert.ErrorIs(t, err, cancelled)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancellation aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := Do(ctx, func(context.Context) error {
			calls++
			return nil
		}, Options{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})
}

func TestBackoffGrowsExponentiallyWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 4; attempt++ {
		d := backoff(base, attempt)
		low := time.Duration(float64(base) * float64(int64(1)<<(attempt-1)))
		high := time.Duration(float64(low) * 1.2)
		assert.GreaterOrEqual(t, d, low, "attempt %d below backoff floor", attempt)
		assert.LessOrEqual(t, d, high, "attempt %d above jitter ceiling", attempt)
	}
}
