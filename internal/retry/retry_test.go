package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(3, time.Millisecond, time.Second)
	require.False(t, p.ShouldRetry(nil, 1))
	require.True(t, p.ShouldRetry(errors.New("connection refused"), 1))
	require.True(t, p.ShouldRetry(errors.New("connection refused"), 2))
	require.False(t, p.ShouldRetry(errors.New("connection refused"), 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(5, 100*time.Millisecond, 300*time.Millisecond)
	for i := 0; i < 20; i++ {
		first := p.Backoff(0)
		require.GreaterOrEqual(t, first, 100*time.Millisecond)
		require.Less(t, first, 150*time.Millisecond)

		second := p.Backoff(1)
		require.GreaterOrEqual(t, second, 200*time.Millisecond)
		require.Less(t, second, 300*time.Millisecond)

		capped := p.Backoff(6)
		require.GreaterOrEqual(t, capped, 300*time.Millisecond)
		require.Less(t, capped, 450*time.Millisecond)
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(3, time.Millisecond, 5*time.Millisecond)

	calls := 0
	var retried []int
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) })
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)

	calls = 0
	err = Do(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("down")
	}, nil)
	require.EqualError(t, err, "after 3 attempts: down")
	require.Equal(t, 3, calls)
}

func TestDoHonorsContext(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(10, time.Second, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Do(ctx, p, func(context.Context) error { return errors.New("down") }, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
