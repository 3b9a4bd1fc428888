package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestCleaner_WakeupBlockingWaitsForFlush(t *testing.T) {
	var calls atomic.Int32
	c := New(func(count int) (int, error) {
		calls.Add(1)
		return count, nil
	})
	c.Fork()
	defer c.Stop()

	c.Wakeup(true, 4)
	require.Equal(t, int32(1), calls.Load())
}

func TestCleaner_WakeupNonBlockingEventuallyFlushes(t *testing.T) {
	done := make(chan struct{})
	c := New(func(count int) (int, error) {
		close(done)
		return count, nil
	})
	c.Fork()
	defer c.Stop()

	c.Wakeup(false, 2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner never flushed after non-blocking wakeup")
	}
}

func TestCleaner_WakeupBeforeForkIsNoop(t *testing.T) {
	calls := 0
	c := New(func(count int) (int, error) {
		calls++
		return count, nil
	})
	c.Wakeup(true, 1)
	require.Equal(t, 0, calls)
}

func TestCleaner_StopIsIdempotent(t *testing.T) {
	c := New(func(count int) (int, error) { return count, nil })
	c.Fork()
	c.Stop()
	c.Stop() // must not panic
}
