package evict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubEvictioner struct {
	pick  func() (uint32, bool)
	evict func(uint32) bool
}

func (s *stubEvictioner) PickVictim() (uint32, bool)        { return s.pick() }
func (s *stubEvictioner) EvictOne(idx uint32) bool          { return s.evict(idx) }
func (s *stubEvictioner) UpdateOnPageHit(uint32)            {}
func (s *stubEvictioner) OnUnfix(uint32)                    {}
func (s *stubEvictioner) OnMiss(uint32, uint32)             {}
func (s *stubEvictioner) OnFixed(uint32)                    {}
func (s *stubEvictioner) OnDirty(uint32)                    {}
func (s *stubEvictioner) OnBlocked(uint32)                  {}
func (s *stubEvictioner) OnSwizzled(uint32)                 {}
func (s *stubEvictioner) OnExplicitlyUnbuffered(uint32)     {}
func (s *stubEvictioner) OnPointerSwizzling(uint32)         {}
func (s *stubEvictioner) ReleaseInternalLatches()           {}

func TestAsync_RunsBatchUntilFreeLenSatisfied(t *testing.T) {
	var free int
	var evictedCount int
	inner := &stubEvictioner{
		pick: func() (uint32, bool) { return 1, true },
		evict: func(uint32) bool {
			evictedCount++
			free++
			return true
		},
	}
	a := NewAsync(inner, func() int { return free }, 3, 100, 0, nil, nil)
	a.Fork()
	defer a.Stop()

	a.Wakeup()

	require.Eventually(t, func() bool { return free >= 3 }, time.Second, time.Millisecond)
	require.GreaterOrEqual(t, evictedCount, 3)
}

func TestAsync_FatalOnExhaustedAttempts(t *testing.T) {
	fatalCh := make(chan error, 1)
	inner := &stubEvictioner{
		pick:  func() (uint32, bool) { return 0, false },
		evict: func(uint32) bool { return false },
	}
	a := NewAsync(inner, func() int { return 0 }, 1, 5, 0, nil, func(err error) {
		fatalCh <- err
	})
	a.Fork()
	defer a.Stop()

	a.Wakeup()

	select {
	case err := <-fatalCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("onFatal was never invoked")
	}
}

func TestAsync_WakeupBeforeForkIsNoop(t *testing.T) {
	calls := 0
	inner := &stubEvictioner{
		pick: func() (uint32, bool) { calls++; return 0, false },
	}
	a := NewAsync(inner, func() int { return 0 }, 1, 1, 0, nil, nil)
	a.Wakeup()
	require.Equal(t, 0, calls)
}

func TestAsync_WakeupAndWaitBlocksUntilBatchDone(t *testing.T) {
	var free int
	var evictedCount int
	inner := &stubEvictioner{
		pick: func() (uint32, bool) { return 1, true },
		evict: func(uint32) bool {
			evictedCount++
			free++
			return true
		},
	}
	a := NewAsync(inner, func() int { return free }, 3, 100, 0, nil, nil)
	a.Fork()
	defer a.Stop()

	a.WakeupAndWait()

	require.GreaterOrEqual(t, free, 3)
	require.GreaterOrEqual(t, evictedCount, 3)
}

func TestAsync_WakeupAndWaitBeforeForkRunsSynchronously(t *testing.T) {
	var free int
	inner := &stubEvictioner{
		pick: func() (uint32, bool) { return 1, true },
		evict: func(uint32) bool {
			free++
			return true
		},
	}
	a := NewAsync(inner, func() int { return free }, 2, 100, 0, nil, nil)

	a.WakeupAndWait()

	require.GreaterOrEqual(t, free, 2)
}
