package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/storage"
)

func TestControlBlock_PrepareForEvictionRequiresZeroPinCnt(t *testing.T) {
	var cb ControlBlock
	cb.Used.Store(true)

	require.True(t, cb.prepareForEviction())
	require.Equal(t, evictPending, cb.PinCnt.Load())

	cb.PinCnt.Store(0)
	cb.PinCnt.Store(2)
	require.False(t, cb.prepareForEviction())
}

func TestControlBlock_EvictableRejectsUnused(t *testing.T) {
	var cb ControlBlock
	ok, reason := cb.evictable(true, true)
	require.False(t, ok)
	require.Equal(t, "unused", reason)
}

func TestControlBlock_EvictableRejectsFixedAndDirty(t *testing.T) {
	var cb ControlBlock
	cb.Used.Store(true)
	cb.PinCnt.Store(1)
	ok, reason := cb.evictable(true, true)
	require.False(t, ok)
	require.Equal(t, "fixed", reason)

	cb.PinCnt.Store(0)
	cb.Dirty.Store(true)
	ok, reason = cb.evictable(false, true)
	require.False(t, ok)
	require.Equal(t, "dirty", reason)

	ok, _ = cb.evictable(true, true)
	require.True(t, ok)
}

func TestControlBlock_EvictableBlocksStoreNodesAndInteriorPages(t *testing.T) {
	var cb ControlBlock
	cb.Used.Store(true)
	cb.IsStoreNode.Store(true)
	ok, reason := cb.evictable(true, true)
	require.False(t, ok)
	require.Equal(t, "blocked", reason)

	cb.IsStoreNode.Store(false)
	cb.Tag.Store(uint32(storage.TagBTreeInterior))
	ok, reason = cb.evictable(true, true)
	require.False(t, ok)
	require.Equal(t, "blocked", reason)

	// Swizzling disabled: interior pages are no longer specially blocked.
	ok, _ = cb.evictable(true, false)
	require.True(t, ok)
}

func TestControlBlock_ResetClearsEverything(t *testing.T) {
	var cb ControlBlock
	cb.PID.Store(7)
	cb.Used.Store(true)
	cb.Dirty.Store(true)
	cb.PinCnt.Store(3)
	cb.IsRoot.Store(true)

	cb.reset()

	require.Equal(t, uint32(0), cb.PID.Load())
	require.False(t, cb.Used.Load())
	require.False(t, cb.Dirty.Load())
	require.Equal(t, int32(0), cb.PinCnt.Load())
	require.False(t, cb.IsRoot.Load())
	require.Equal(t, NullFrame, cb.ParentFrame.Load())
}
