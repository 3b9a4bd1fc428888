package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWarmupTracker_DoneAtRatioThreshold(t *testing.T) {
	var done int
	w := newWarmupTracker(4, 0.75, func() { done++ })

	w.recordHit()
	w.recordHit()
	w.recordHit()
	require.False(t, w.isDone(), "below min_fixes floor")

	w.recordHit()
	require.True(t, w.isDone())
	require.Equal(t, 1, done)
}

func TestWarmupTracker_MissesDelayDone(t *testing.T) {
	w := newWarmupTracker(4, 0.75, nil)
	w.recordMiss()
	w.recordMiss()
	w.recordHit()
	w.recordHit()
	require.False(t, w.isDone(), "0.5 hit ratio is below the 0.75 threshold")
}

func TestWarmupTracker_MarkDoneFiresOnce(t *testing.T) {
	var calls int
	w := newWarmupTracker(0, 0, func() { calls++ })
	w.markDone()
	w.markDone()
	require.Equal(t, 1, calls)
}
