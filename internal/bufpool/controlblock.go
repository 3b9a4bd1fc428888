package bufpool

import (
	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/internal/storage"
)

// NullFrame is the sentinel frame index meaning "no frame" — used for a
// control block's parent-frame field when a page has no cached parent
// (the root) and for hash-table pairs that have not resolved a parent
// yet. Frame 0 is never handed out by the free list; valid frames occupy
// [1, N).
const NullFrame uint32 = 0

// evictPending is the sentinel PinCnt value a successful
// prepareForEviction CAS transitions into from 0, marking the frame as
// claimed for eviction so no other fixer can pin it mid-flight.
const evictPending int32 = -1

// ControlBlock is one frame's metadata: everything the buffer pool core
// tracks about a cached page besides its bytes. Fields that can be read
// or written without the frame's latch (because they participate in
// fuzzy checkpoints, eviction predicates evaluated opportunistically, or
// cross-goroutine hints) are typed atomics; everything else is only
// ever touched while the frame's latch is held.
type ControlBlock struct {
	PID    atomic.Uint32
	Store  atomic.Uint32 // store id pid belongs to, for eviction flush/IO
	Tag    atomic.Uint32 // storage.Tag, stored widened for atomic access
	Used   atomic.Bool
	Dirty  atomic.Bool
	Swizzled atomic.Bool

	// PinCnt is the reference count a fixer holds; evictPending (-1)
	// marks a frame mid-eviction so late pinners back off.
	PinCnt atomic.Int32

	RefCount   atomic.Uint32
	RefCountEx atomic.Uint32

	RecLSN  atomic.Uint64
	PageLSN atomic.Uint64

	CheckRecovery    atomic.Bool
	PinnedForRestore atomic.Bool

	// ParentFrame mirrors the hash table's parent-frame field for this
	// pid, kept alongside the control block so the eviction path can
	// read it without a hash-table lookup. NullFrame means "no cached
	// parent" (root pages, or a parent not currently swizzled-to).
	ParentFrame atomic.Uint32

	IsRoot         atomic.Bool
	IsStoreNode    atomic.Bool
	HasFosterChild atomic.Bool

	Latch Latch
}

// reset clears a control block back to its Free-state contents. Callers
// must hold the frame's EX latch (or know no other goroutine can observe
// it, e.g. during initial allocation).
func (cb *ControlBlock) reset() {
	cb.PID.Store(0)
	cb.Store.Store(0)
	cb.Tag.Store(uint32(storage.TagUnset))
	cb.Used.Store(false)
	cb.Dirty.Store(false)
	cb.Swizzled.Store(false)
	cb.PinCnt.Store(0)
	cb.RefCount.Store(0)
	cb.RefCountEx.Store(0)
	cb.RecLSN.Store(0)
	cb.PageLSN.Store(0)
	cb.CheckRecovery.Store(false)
	cb.PinnedForRestore.Store(false)
	cb.ParentFrame.Store(NullFrame)
	cb.IsRoot.Store(false)
	cb.IsStoreNode.Store(false)
	cb.HasFosterChild.Store(false)
}

// prepareForEviction is the CAS that transitions pin_cnt from 0 to -1;
// a failed CAS means someone else pinned the frame between the
// eviction predicate check and this call, so the attempt must abort.
func (cb *ControlBlock) prepareForEviction() bool {
	return cb.PinCnt.CompareAndSwap(0, evictPending)
}

// evictable reports whether the frame passes the eviction predicate, given
// that its EX latch is already held by the caller. flushDirtyOK tells it
// whether a dirty page may still be evicted (flush-on-evict enabled, or
// write-elision/no-db mode active); swizzlingEnabled blocks inner pages
// and pages with a foster child from the swizzled eviction path.
func (cb *ControlBlock) evictable(flushDirtyOK, swizzlingEnabled bool) (ok bool, reason string) {
	if !cb.Used.Load() {
		return false, "unused"
	}
	if cb.PinnedForRestore.Load() {
		return false, "pinned_for_restore"
	}
	if cb.PinCnt.Load() != 0 {
		return false, "fixed"
	}
	if cb.IsStoreNode.Load() || cb.IsRoot.Load() {
		return false, "blocked"
	}
	if swizzlingEnabled && (storage.Tag(cb.Tag.Load()) == storage.TagBTreeInterior || cb.HasFosterChild.Load()) {
		return false, "blocked"
	}
	if cb.Dirty.Load() && !flushDirtyOK {
		return false, "dirty"
	}
	return true, ""
}
