package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock, events *[]string) *Breaker {
	var mu sync.Mutex
	return New(Config{Threshold: 3, ResetTimeout: 1800 * time.Second}, clock, func(e string) {
		mu.Lock()
		defer mu.Unlock()
		if events != nil {
			*events = append(*events, e)
		}
	})
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_000, 0)}
	b := newTestBreaker(clock, nil)

	require.False(t, b.RecordFailure("foo.test"))
	require.False(t, b.IsOpen("foo.test"))
	require.False(t, b.RecordFailure("foo.test"))
	require.False(t, b.IsOpen("foo.test"))
	require.True(t, b.RecordFailure("foo.test"))
	require.True(t, b.IsOpen("foo.test"))
	require.True(t, b.IsOpen("WWW.FOO.TEST"), "domain comparison should ignore case and www")
	require.Equal(t, 3, b.FailureCount("foo.test"))
}

func TestBreaker_LazyResetAfterTimeout(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_000, 0)}
	var events []string
	b := newTestBreaker(clock, &events)
	for i := 0; i < 3; i++ {
		b.RecordFailure("foo.test")
	}
	require.True(t, b.IsOpen("foo.test"))

	clock.Advance(1799 * time.Second)
	require.True(t, b.IsOpen("foo.test"))

	clock.Advance(2 * time.Second)
	require.False(t, b.IsOpen("foo.test"))
	require.Equal(t, 0, b.FailureCount("foo.test"), "reset should clear bookkeeping")
	require.Empty(t, b.Snapshot())
	require.Contains(t, events, EventReset)

	require.False(t, b.RecordFailure("foo.test"), "renewed failures start from zero")
}

func TestBreaker_SuccessClearsState(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_000, 0)}
	b := newTestBreaker(clock, nil)
	for i := 0; i < 5; i++ {
		b.RecordFailure("foo.test")
	}
	require.True(t, b.IsOpen("foo.test"))

	b.RecordSuccess("foo.test")
	require.False(t, b.IsOpen("foo.test"))
	require.Equal(t, 0, b.FailureCount("foo.test"))
}

func TestBreaker_EmptyDomain(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil, nil)
	require.False(t, b.RecordFailure(""))
	require.False(t, b.IsOpen(""))
	b.RecordSuccess("")
	require.Empty(t, b.Snapshot())
}

func TestBreaker_Snapshot(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_000, 0)}
	b := newTestBreaker(clock, nil)
	b.RecordFailure("b.test")
	for i := 0; i < 3; i++ {
		b.RecordFailure("a.test")
	}

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "a.test", snap[0].Domain)
	require.True(t, snap[0].Open)
	require.Equal(t, "b.test", snap[1].Domain)
	require.False(t, snap[1].Open)
	require.Equal(t, 1, snap[1].FailureCount)
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_000, 0)}
	b := newTestBreaker(clock, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.RecordFailure("race.test")
			_ = b.IsOpen("race.test")
			if i%10 == 0 {
				_ = b.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, b.FailureCount("race.test"))
	require.True(t, b.IsOpen("race.test"))
}
