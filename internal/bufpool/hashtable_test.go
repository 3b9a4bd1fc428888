package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameTable_InsertIfAbsentRace(t *testing.T) {
	ft := NewFrameTable()

	pair, won := ft.InsertIfAbsent(10, 3, NullFrame)
	require.True(t, won)
	require.Equal(t, uint32(3), pair.Self)

	pair2, won2 := ft.InsertIfAbsent(10, 99, NullFrame)
	require.False(t, won2)
	require.Equal(t, uint32(3), pair2.Self, "loser must observe the winner's pair")
	require.Equal(t, 1, ft.Len())
}

func TestFrameTable_LookupAndErase(t *testing.T) {
	ft := NewFrameTable()
	ft.InsertIfAbsent(5, 1, NullFrame)

	pair, ok := ft.Lookup(5)
	require.True(t, ok)
	require.Equal(t, uint32(1), pair.Self)

	ft.Erase(5)
	_, ok = ft.Lookup(5)
	require.False(t, ok)
	require.Equal(t, 0, ft.Len())
}

func TestFramePair_SetParentIsConcurrencySafe(t *testing.T) {
	pair, _ := NewFrameTable().InsertIfAbsent(1, 1, NullFrame)
	require.Equal(t, NullFrame, pair.Parent())
	pair.SetParent(42)
	require.Equal(t, uint32(42), pair.Parent())
}
