package evict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCar_OnMissPopulatesT1(t *testing.T) {
	h := newFakeHost(8)
	c := NewCar(h, 4, nil)

	c.OnMiss(1, 100)
	require.Equal(t, 1, c.clocks.SizeOf(carT1))
	require.Equal(t, 0, c.clocks.SizeOf(carT2))
}

func TestCar_GhostHitOnB1PromotesToT2AndGrowsP(t *testing.T) {
	h := newFakeHost(8)
	c := NewCar(h, 2, nil)

	// Fill T1 to capacity, forcing the next miss to evict into B1.
	c.OnMiss(1, 100)
	c.OnMiss(2, 101)
	h.setEvictable(1, true)
	h.setEvictable(2, true)

	idx, ok := c.PickVictim()
	require.True(t, ok)
	c.EvictOne(idx)

	require.Equal(t, 1, c.b1.Len())

	evictedPID := uint32(100)
	if idx == 2 {
		evictedPID = 101
	}

	before := c.p
	c.OnMiss(3, evictedPID)
	require.Greater(t, c.p, before, "a B1 ghost hit must grow p")
	require.False(t, c.b1.Contains(evictedPID), "ghost entry removed on hit")
	require.Equal(t, 1, c.clocks.SizeOf(carT2))
}

func TestCar_PickVictimSkipsReferencedFrames(t *testing.T) {
	h := newFakeHost(8)
	c := NewCar(h, 4, nil)
	c.OnMiss(1, 100)
	c.OnMiss(2, 101)
	c.UpdateOnPageHit(1)
	h.setEvictable(2, true)

	idx, ok := c.PickVictim()
	require.True(t, ok)
	require.Equal(t, uint32(2), idx)
}

func TestCar_PickVictimReturnsFalseWhenNothingEvictable(t *testing.T) {
	h := newFakeHost(8)
	c := NewCar(h, 4, nil)
	c.OnMiss(1, 100)
	// Never marked evictable: every attempt fails.
	_, ok := c.PickVictim()
	require.False(t, ok)
}

func TestCar_FailedEvictOneRestoresClockInsteadOfGhosting(t *testing.T) {
	h := newFakeHost(8)
	c := NewCar(h, 4, nil)
	c.OnMiss(1, 100)
	h.setEvictable(1, true)
	h.doEvictErr[1] = "blocked"

	idx, ok := c.PickVictim()
	require.True(t, ok)
	require.Equal(t, uint32(1), idx)
	require.Equal(t, 0, c.clocks.SizeOf(carT1), "candidate removed from its clock pending the outcome")

	evicted := c.EvictOne(idx)
	require.False(t, evicted)

	require.Equal(t, 0, c.b1.Len(), "a failed eviction must not ghost-list the frame")
	require.Equal(t, 1, c.clocks.SizeOf(carT1), "the frame goes back on its clock, still live and tracked")
	require.Empty(t, c.pending)
}
