package evict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/storage"
)

func TestLoopSelector_SweepsModuloN(t *testing.T) {
	s := NewLoopSelector()
	seen := map[uint32]bool{}
	for i := 0; i < 20; i++ {
		v := s.Next(5)
		require.GreaterOrEqual(t, v, uint32(1))
		require.Less(t, v, uint32(5))
		seen[v] = true
	}
	require.Len(t, seen, 4, "should cycle through every non-zero frame")
}

func TestRandomSelector_StaysInRange(t *testing.T) {
	s := NewRandomSelector()
	for i := 0; i < 100; i++ {
		v := s.Next(10)
		require.GreaterOrEqual(t, v, uint32(1))
		require.Less(t, v, uint32(10))
	}
}

func TestClockFilter_AcceptsUnsetAndClearsSetBit(t *testing.T) {
	f := NewClockFilter(4, EventHit)
	require.True(t, f.Accept(2), "unset bit accepts immediately")

	f.OnEvent(2, EventHit)
	require.False(t, f.Accept(2), "set bit rejects once and clears")
	require.True(t, f.Accept(2), "now unset, accepts")
}

func TestClockFilter_IgnoresUnconfiguredEvents(t *testing.T) {
	f := NewClockFilter(4, EventHit)
	f.OnEvent(1, EventMiss)
	require.True(t, f.Accept(1))
}

func TestGClockFilter_DecrementsBeforeAccepting(t *testing.T) {
	tagOf := func(uint32) storage.Tag { return storage.TagBTreeLeaf }
	levels := map[Event]int32{EventHit: 3}
	f := NewGClockFilter(4, tagOf, levels, DefaultPageClass)

	f.OnEvent(1, EventHit)
	require.False(t, f.Accept(1))
	require.False(t, f.Accept(1))
	require.False(t, f.Accept(1))
	require.True(t, f.Accept(1), "counter reached zero, now accepts")
}

func TestGClockFilter_PageClassScalesLevel(t *testing.T) {
	tagOf := func(uint32) storage.Tag { return storage.TagBTreeInterior }
	levels := map[Event]int32{EventHit: 2}
	pageClass := func(storage.Tag) int32 { return 3 }
	f := NewGClockFilter(4, tagOf, levels, pageClass)

	f.OnEvent(1, EventHit)
	for i := 0; i < 6; i++ {
		require.False(t, f.Accept(1))
	}
	require.True(t, f.Accept(1))
}

func TestSelectFilter_SkipsFixedFramesAndPicksEvictableOne(t *testing.T) {
	h := newFakeHost(5)
	h.setEvictable(1, false)
	h.setEvictable(2, true)

	sf := NewSelectFilter(h, NewLoopSelector(), NoneFilter{}, false)
	idx, ok := sf.PickVictim()
	require.True(t, ok)
	require.Equal(t, uint32(2), idx)
	require.True(t, h.locked[2], "picked frame stays EX-latched")
}

func TestSelectFilter_EvictOneDelegatesToHost(t *testing.T) {
	h := newFakeHost(3)
	h.setEvictable(1, true)
	h.TryLatchEX(1)

	sf := NewSelectFilter(h, NewLoopSelector(), NoneFilter{}, false)
	require.True(t, sf.EvictOne(1))
	require.Equal(t, []uint32{1}, h.evicted)
}
