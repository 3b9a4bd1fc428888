package bufpool

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tuannm99/novasql/internal/bufpool/evict"
	"github.com/tuannm99/novasql/internal/cleaner"
	"github.com/tuannm99/novasql/internal/config"
	"github.com/tuannm99/novasql/internal/recovery"
	"github.com/tuannm99/novasql/internal/restore"
	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/internal/wal"
)

const minFrames = 32

const logDebugPrefix = "bufpool: "

// CheckpointEntry is one row of a fuzzy checkpoint snapshot.
type CheckpointEntry struct {
	PageID  uint32
	PageLSN uint64
	RecLSN  uint64
}

// BufferPool is the frame array, the pid->frame hash table, the free
// list, the swizzling policy, and the fix/unfix/refix state machine
// built on top of them. It implements evict.Host and
// evict.Unswizzler so any Evictioner can drive eviction through the
// narrow upcall surface those interfaces define, without holding a
// concrete reference back to BufferPool.
type BufferPool struct {
	cfg *config.BufferPool
	n   int // total frame count, including reserved frame 0

	cb   []ControlBlock
	bufs [][]byte

	table   *FrameTable
	free    FreeList
	swizzle SwizzlePolicy
	roots   sync.Map // store uint32 -> frame uint32

	vol      *storage.Volume
	log      *wal.Manager
	dirty    *recovery.DirtyPageTable
	cleanerH *cleaner.Cleaner

	evictioner      evict.Evictioner
	asyncEvictioner *evict.Async

	restoreMu   sync.Mutex
	restoreCoord *restore.Coordinator
	bgRestorer   *restore.BackgroundRestorer

	mediaFailure atomic.Bool

	warmup *warmupTracker
}

var _ evict.Unswizzler = (*BufferPool)(nil)

// New allocates a buffer pool sized from cfg.BufferPoolSizeMiB and wires
// it to its collaborators, picking an Evictioner from cfg.Eviction.
func New(cfg *config.BufferPool, vol *storage.Volume, logMgr *wal.Manager, dirty *recovery.DirtyPageTable, cleanerH *cleaner.Cleaner) (*BufferPool, error) {
	n := (cfg.BufferPoolSizeMiB * storage.OneMB) / storage.PageSize
	if n < minFrames {
		return nil, errConfiguration(n)
	}

	bp := &BufferPool{
		cfg:      cfg,
		n:        n,
		cb:       make([]ControlBlock, n),
		bufs:     make([][]byte, n),
		table:    NewFrameTable(),
		free:     NewChannelFreeList(n),
		vol:      vol,
		log:      logMgr,
		dirty:    dirty,
		cleanerH: cleanerH,
	}
	for i := range bp.bufs {
		bp.bufs[i] = make([]byte, storage.PageSize)
	}
	if cfg.Swizzling {
		bp.swizzle = SimplePolicy{}
	} else {
		bp.swizzle = NonePolicy{}
	}

	bp.warmup = newWarmupTracker(cfg.WarmupMinFixes, cfg.WarmupHitRatio, bp.onWarmupDone)
	bp.evictioner = bp.buildEvictioner()
	if cfg.AsyncEviction {
		bp.asyncEvictioner = evict.NewAsync(bp.evictioner, bp.free.Len,
			cfg.EvictionBatchSize, cfg.EvictionMaxAttempts, cfg.WakeupCleanerAttempts,
			bp.wakeCleaner, bp.onEvictionFatal)
		bp.asyncEvictioner.Fork()
	}
	return bp, nil
}

func (bp *BufferPool) buildEvictioner() evict.Evictioner {
	switch bp.cfg.Eviction {
	case "car":
		return evict.NewCar(bp, bp.n-1, bp.wakeCleaner)
	case "leanstore":
		return evict.NewLeanStore(bp, bp.n, bp.cfg.LeanStore.CoolingStageFraction)
	default:
		var selector evict.Selector
		if bp.cfg.SelectFilter.Selector == "random" {
			selector = evict.NewRandomSelector()
		} else {
			selector = evict.NewLoopSelector()
		}
		var filter evict.Filter
		switch bp.cfg.SelectFilter.Filter {
		case "gclock":
			levels := map[evict.Event]int32{
				evict.EventHit: int32(bp.cfg.SelectFilter.GCLOCKInit),
			}
			filter = evict.NewGClockFilter(bp.n, bp.TagOf, levels, evict.DefaultPageClass)
		case "none":
			filter = evict.NoneFilter{}
		default:
			filter = evict.NewClockFilter(bp.n, evict.EventHit)
		}
		return evict.NewSelectFilter(bp, selector, filter, bp.cfg.SelectFilter.EarlyExit)
	}
}

func (bp *BufferPool) wakeCleaner(block bool, count int) {
	if bp.cleanerH != nil {
		bp.cleanerH.Wakeup(block, count)
	}
}

func (bp *BufferPool) onEvictionFatal(err error) {
	slog.Error(logDebugPrefix+"async evictioner fatal", "err", err)
}

func (bp *BufferPool) onWarmupDone() {
	bp.restoreMu.Lock()
	bp.restoreCoord = nil
	bp.restoreMu.Unlock()
	if bp.log != nil {
		_, _ = bp.log.Append(wal.Record{Type: wal.WarmupDone})
	}
	slog.Debug(logDebugPrefix + "warmup done")
}

func (bp *BufferPool) pageAt(idx uint32) storage.Page {
	return storage.Page{Buf: bp.bufs[idx]}
}

func (bp *BufferPool) flushDirtyOK() bool {
	return bp.cfg.FlushDirtyOnEvict || bp.cfg.WriteElision || bp.cfg.NoDB
}

// --- evict.Host ---

func (bp *BufferPool) NumFrames() int { return bp.n }

func (bp *BufferPool) TryLatchEX(idx uint32) bool { return bp.cb[idx].Latch.TryLockEX() }
func (bp *BufferPool) UnlatchEX(idx uint32)        { bp.cb[idx].Latch.UnlockEX() }

func (bp *BufferPool) IsEvictable(idx uint32) (bool, string) {
	return bp.cb[idx].evictable(bp.flushDirtyOK(), bp.swizzle.Enabled())
}

func (bp *BufferPool) TagOf(idx uint32) storage.Tag {
	return storage.Tag(bp.cb[idx].Tag.Load())
}

func (bp *BufferPool) RandomFrame() uint32 {
	if bp.n <= 1 {
		return 0
	}
	return uint32(1 + rand.Intn(bp.n-1))
}

func (bp *BufferPool) Unevictable(idx uint32) bool {
	cb := &bp.cb[idx]
	if !cb.Used.Load() {
		return true
	}
	if cb.IsRoot.Load() || cb.IsStoreNode.Load() {
		return true
	}
	if bp.swizzle.Enabled() && (storage.Tag(cb.Tag.Load()) == storage.TagBTreeInterior || cb.HasFosterChild.Load()) {
		return true
	}
	return false
}

// TryCool implements evict.Unswizzler: with parent SH and self EX (both
// non-blocking), unswizzle the parent's slot and drop self's swizzled
// flag, then release both — the frame becomes a cooling candidate, not
// a pinned one.
func (bp *BufferPool) TryCool(idx uint32) bool {
	cb := &bp.cb[idx]
	parentFrame := cb.ParentFrame.Load()
	if parentFrame == NullFrame {
		return false
	}
	if !bp.cb[parentFrame].Latch.TryLockSH() {
		return false
	}
	defer bp.cb[parentFrame].Latch.UnlockSH()
	if !cb.Latch.TryLockEX() {
		return false
	}
	defer cb.Latch.UnlockEX()
	if !cb.Swizzled.Load() {
		return false
	}
	slot := bp.findChildSlot(parentFrame, idx)
	if slot < 0 {
		return false
	}
	page := bp.pageAt(parentFrame)
	_ = page.SetChildSlot(slot, cb.PID.Load())
	cb.Swizzled.Store(false)
	return true
}

func (bp *BufferPool) findChildSlot(parentFrame, childFrame uint32) int {
	page := bp.pageAt(parentFrame)
	for i := 0; i < page.NumChildSlots(); i++ {
		v, err := page.ChildSlot(i)
		if err != nil {
			break
		}
		if fr, ok := bp.swizzle.Decode(v); ok && fr == childFrame {
			return i
		}
	}
	return -1
}

// DoEvict runs the full do-eviction procedure on idx, which must already
// be EX-latched by the caller. The latch is released before returning
// regardless of outcome.
func (bp *BufferPool) DoEvict(idx uint32) (bool, string) {
	cb := &bp.cb[idx]
	pid := cb.PID.Load()
	store := cb.Store.Load()

	if cb.Swizzled.Load() && bp.swizzle.Enabled() {
		parentFrame := cb.ParentFrame.Load()
		if parentFrame != NullFrame {
			if !bp.cb[parentFrame].Latch.TryLockEX() {
				cb.Latch.UnlockEX()
				return false, "blocked"
			}
			bp.unswizzleInParentLocked(parentFrame, idx, pid, cb)
			bp.cb[parentFrame].Latch.UnlockEX()
		}
	}

	if !cb.prepareForEviction() {
		cb.Latch.UnlockEX()
		return false, "fixed"
	}

	if cb.Dirty.Load() {
		if bp.cfg.FlushDirtyOnEvict {
			page := bp.pageAt(idx)
			bp.clearSwizzledChildSlots(page)
			if err := bp.vol.SavePage(store, page); err != nil {
				cb.PinCnt.Store(0)
				cb.Latch.UnlockEX()
				return false, "io_error"
			}
			if bp.dirty != nil {
				bp.dirty.ClearDirty(pid)
			}
		}
		// else write-elision/no-db: drop the dirty page without writing.
	}

	if bp.cfg.LogEvictions && bp.log != nil {
		_, _ = bp.log.Append(wal.Record{Type: wal.EvictPage, PageID: pid, Frame: idx})
	}

	bp.table.Erase(pid)
	cb.reset()
	bp.free.Enqueue(idx)
	if bp.evictioner != nil {
		bp.evictioner.OnExplicitlyUnbuffered(idx)
	}
	cb.Latch.UnlockEX()
	return true, ""
}

func (bp *BufferPool) unswizzleInParentLocked(parentFrame, childFrame, childPID uint32, childCB *ControlBlock) {
	slot := bp.findChildSlot(parentFrame, childFrame)
	if slot < 0 {
		childCB.Swizzled.Store(false)
		return
	}
	page := bp.pageAt(parentFrame)
	_ = page.SetChildSlot(slot, childPID)
	if bp.cfg.MaintainEMLSN {
		lsn := childCB.PageLSN.Load()
		_ = page.SetChildEMLSN(slot, lsn)
		if bp.log != nil {
			_, _ = bp.log.Append(wal.Record{
				Type: wal.UpdateEMLSN, PageID: bp.cb[parentFrame].PID.Load(),
				ChildSlot: uint32(slot), EMLSN: lsn,
			})
		}
	}
	childCB.Swizzled.Store(false)
}

// clearSwizzledChildSlots converts every swizzled slot in page back to a
// persistent id before it is written to the volume, per the "a page
// written back must not contain any swizzled child slot" invariant.
// Slots whose child is busy are skipped (best-effort; a future flush
// will catch them once the child is free).
func (bp *BufferPool) clearSwizzledChildSlots(page storage.Page) {
	for i := 0; i < page.NumChildSlots(); i++ {
		v, err := page.ChildSlot(i)
		if err != nil {
			break
		}
		fr, ok := bp.swizzle.Decode(v)
		if !ok {
			continue
		}
		childCB := &bp.cb[fr]
		if !childCB.Latch.TryLockEX() {
			continue
		}
		_ = page.SetChildSlot(i, childCB.PID.Load())
		childCB.Swizzled.Store(false)
		childCB.ParentFrame.Store(NullFrame)
		childCB.Latch.UnlockEX()
	}
}

// --- root/store bookkeeping ---

func (bp *BufferPool) rootFrame(store uint32) (uint32, bool) {
	v, ok := bp.roots.Load(store)
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

func (bp *BufferPool) setRootFrame(store, frame uint32) { bp.roots.Store(store, frame) }

// --- free frame acquisition / eviction triggering ---

// acquireFreeFrame dequeues a frame from the free list, triggering
// eviction when it is empty. In synchronous mode (async_eviction unset)
// the caller's own goroutine drives PickVictim/EvictOne directly. In
// async mode, eviction runs only on the async evictioner's own goroutine
// — this just wakes it and waits for a round, rather than also calling
// the policy inline, which would let two goroutines drive the same
// Evictioner's pick-and-evict cycle at once for no benefit. Either way,
// once the free list dips under a batch's worth, the async evictioner is
// nudged (non-blocking) so it tops the list back up ahead of the next
// miss instead of only reacting after the list is already empty.
func (bp *BufferPool) acquireFreeFrame() (uint32, bool) {
	maxAttempts := bp.cfg.EvictionMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1000
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx, ok := bp.free.Dequeue()
		if ok {
			if bp.asyncEvictioner != nil && bp.free.Len() < bp.cfg.EvictionBatchSize {
				bp.asyncEvictioner.Wakeup()
			}
			return idx, true
		}
		if bp.asyncEvictioner != nil {
			bp.asyncEvictioner.WakeupAndWait()
			continue
		}
		if bp.evictioner == nil {
			return 0, false
		}
		victim, ok := bp.evictioner.PickVictim()
		if !ok {
			if bp.cfg.WakeupCleanerAttempts > 0 && attempt%bp.cfg.WakeupCleanerAttempts == 0 {
				bp.wakeCleaner(false, bp.cfg.EvictionBatchSize)
			}
			continue
		}
		bp.evictioner.EvictOne(victim)
	}
	return 0, false
}

func (bp *BufferPool) latchTry(cb *ControlBlock, mode Mode, conditional bool) bool {
	if conditional {
		return cb.Latch.TryLock(mode)
	}
	cb.Latch.Lock(mode)
	return true
}

// readPage loads pid's bytes: zeroed-and-initialized for a virgin page,
// from the backup device when a media-failure window covers it and
// recovery is disabled for this call, otherwise from the volume.
func (bp *BufferPool) readPage(store, pid uint32, virgin, fromBackupAllowed bool) (storage.Page, bool, error) {
	if virgin {
		buf := make([]byte, storage.PageSize)
		return storage.NewPage(buf, pid), false, nil
	}
	if fromBackupAllowed && bp.mediaFailure.Load() {
		buf := make([]byte, storage.PageSize)
		if err := bp.vol.ReadBackup(pid, [][]byte{buf}); err != nil {
			return storage.Page{}, false, err
		}
		return storage.Page{Buf: buf}, true, nil
	}
	p, err := bp.vol.LoadPage(store, pid)
	return p, false, err
}

// maybeSwizzle installs a swizzled pointer in parent's child slot for
// pid once it lands in childFrame.
func (bp *BufferPool) maybeSwizzle(hasParent bool, parentFrame, childFrame, pid uint32) {
	if !bp.swizzle.Enabled() || !hasParent || parentFrame == NullFrame {
		return
	}
	parentCB := &bp.cb[parentFrame]
	if !parentCB.Swizzled.Load() {
		return
	}
	childCB := &bp.cb[childFrame]
	if childCB.Swizzled.Load() {
		return
	}
	page := bp.pageAt(parentFrame)
	for i := 0; i < page.NumChildSlots(); i++ {
		v, err := page.ChildSlot(i)
		if err != nil {
			break
		}
		if v == 0 || bp.swizzle.IsSwizzled(v) || v != pid {
			continue
		}
		if page.FosterChild() == pid {
			continue
		}
		if childCB.Swizzled.CompareAndSwap(false, true) {
			_ = page.SetChildSlot(i, bp.swizzle.Encode(childFrame))
			if bp.evictioner != nil {
				bp.evictioner.OnPointerSwizzling(childFrame)
			}
		}
		return
	}
}

func (bp *BufferPool) replayRedo(cb *ControlBlock, idx, pid uint32, emlsn uint64, recov *recovery.RedoIterator) {
	if recov == nil {
		return
	}
	page := bp.pageAt(idx)
	for recov.Next() {
		if err := recov.Apply(&page); err != nil {
			slog.Error(logDebugPrefix+"redo apply failed", "pageID", pid, "err", err)
			return
		}
	}
	cb.PageLSN.Store(emlsn)
}

// fix is the unified hit/miss state machine, shared by FixRoot (which
// always misses on first call and never has a parent) and FixNonRoot's
// non-swizzled path.
func (bp *BufferPool) fix(store, pid, parentFrame uint32, hasParent bool, mode Mode, conditional, virgin, onlyIfHit, doRecovery bool, recov *recovery.RedoIterator, emlsn uint64) (uint32, bool, error) {
	for {
		if pair, found := bp.table.Lookup(pid); found {
			idx := pair.Self
			cb := &bp.cb[idx]
			latchMode := mode
			if cb.CheckRecovery.Load() {
				latchMode = EX
			}
			if !bp.latchTry(cb, latchMode, conditional) {
				return 0, false, errFrameInUse(pid)
			}
			// A page still pinned for restore (served from the backup
			// device, not yet caught up by the coordinator) is only
			// safe to hand to the caller completing its recovery; an
			// ordinary fixer must retry until that finishes.
			if !cb.Used.Load() || cb.PID.Load() != pid || (cb.PinnedForRestore.Load() && !doRecovery) {
				cb.Latch.Unlock(latchMode)
				continue
			}
			cb.RefCount.Inc()
			cb.PinCnt.Inc()
			if doRecovery && cb.CheckRecovery.Load() {
				bp.replayRedo(cb, idx, pid, emlsn, recov)
				cb.CheckRecovery.Store(false)
				cb.PinnedForRestore.Store(false)
			}
			if latchMode == EX && mode == SH {
				cb.Latch.Downgrade()
			}
			bp.maybeSwizzle(hasParent, parentFrame, idx, pid)
			if bp.evictioner != nil {
				bp.evictioner.UpdateOnPageHit(idx)
			}
			bp.warmup.recordHit()
			return idx, true, nil
		}

		if onlyIfHit {
			return 0, false, nil
		}

		idx, gotFrame := bp.acquireFreeFrame()
		if !gotFrame {
			return 0, false, errEvictionStuck(bp.cfg.EvictionMaxAttempts)
		}
		cb := &bp.cb[idx]
		cb.Latch.LockEX()

		if _, won := bp.table.InsertIfAbsent(pid, idx, parentFrame); !won {
			cb.Latch.UnlockEX()
			bp.free.Enqueue(idx)
			continue
		}

		fromBackupAllowed := !doRecovery
		page, fromBackup, err := bp.readPage(store, pid, virgin, fromBackupAllowed)
		if err != nil {
			bp.table.Erase(pid)
			cb.Latch.UnlockEX()
			bp.free.Enqueue(idx)
			return 0, false, errIO(pid, err)
		}
		copy(bp.bufs[idx], page.Buf)

		cb.reset()
		cb.Used.Store(true)
		cb.PID.Store(pid)
		cb.Store.Store(store)
		cb.Tag.Store(uint32(page.Tag()))
		cb.HasFosterChild.Store(page.HasFosterChild())
		cb.ParentFrame.Store(parentFrame)
		// CheckRecovery only matters for pages a restore path may still
		// need to redo against; an ordinary volume read needs none, and
		// leaving it set would force every later hit onto the EX latch
		// path for no reason.
		cb.CheckRecovery.Store(doRecovery || fromBackup)
		if fromBackup {
			cb.PinnedForRestore.Store(true)
		}
		cb.RefCount.Inc()
		cb.PinCnt.Inc()

		bp.warmup.recordMiss()
		if bp.evictioner != nil {
			bp.evictioner.OnMiss(idx, pid)
		}
		if bp.log != nil && bp.cfg.LogFetches {
			_, _ = bp.log.Append(wal.Record{Type: wal.FetchPage, PageID: pid, Store: store, FetchedLSN: cb.PageLSN.Load()})
		}
		if doRecovery {
			bp.replayRedo(cb, idx, pid, emlsn, recov)
			cb.CheckRecovery.Store(false)
			cb.PinnedForRestore.Store(false)
		}
		if mode == SH {
			cb.Latch.Downgrade()
		}
		bp.maybeSwizzle(hasParent, parentFrame, idx, pid)

		if bp.free.Len() == 0 {
			bp.warmup.markDone()
		}
		return idx, true, nil
	}
}

// FixRoot returns store's root page, already latched in mode. On first
// fix it loads the page and keeps it permanently swizzled.
func (bp *BufferPool) FixRoot(store uint32, mode Mode, conditional, virgin bool) (storage.Page, error) {
	if frame, ok := bp.rootFrame(store); ok {
		cb := &bp.cb[frame]
		if !bp.latchTry(cb, mode, conditional) {
			return storage.Page{}, errFrameInUse(cb.PID.Load())
		}
		cb.RefCount.Inc()
		cb.PinCnt.Inc()
		return bp.pageAt(frame), nil
	}

	rootPID, ok := bp.vol.GetStoreRoot(store)
	if !ok {
		return storage.Page{}, fmt.Errorf("bufpool: unknown store %d", store)
	}
	idx, _, err := bp.fix(store, rootPID, NullFrame, false, EX, false, virgin, false, false, nil, 0)
	if err != nil {
		return storage.Page{}, err
	}
	cb := &bp.cb[idx]
	cb.IsRoot.Store(true)
	cb.Swizzled.Store(true)
	bp.setRootFrame(store, idx)
	if mode == SH {
		cb.Latch.Downgrade()
	}
	return bp.pageAt(idx), nil
}

// FixNonRoot fixes a non-root page. slot is the raw child-slot value
// read from the parent (already-swizzled frame index or persistent
// id); the caller must hold parentFrame latched throughout (latch
// coupling). Returns ok=false iff onlyIfHit and the page was a miss.
func (bp *BufferPool) FixNonRoot(parentFrame, slot uint32, mode Mode, conditional, virgin, onlyIfHit, doRecovery bool, recov *recovery.RedoIterator, emlsn uint64, store uint32) (storage.Page, uint32, bool, error) {
	if frame, ok := bp.swizzle.Decode(slot); ok {
		cb := &bp.cb[frame]
		if !bp.latchTry(cb, mode, conditional) {
			return storage.Page{}, 0, false, errFrameInUse(cb.PID.Load())
		}
		cb.RefCount.Inc()
		cb.PinCnt.Inc()
		if bp.evictioner != nil {
			bp.evictioner.UpdateOnPageHit(frame)
		}
		bp.warmup.recordHit()
		return bp.pageAt(frame), frame, true, nil
	}

	idx, ok, err := bp.fix(store, slot, parentFrame, true, mode, conditional, virgin, onlyIfHit, doRecovery, recov, emlsn)
	if err != nil || !ok {
		return storage.Page{}, 0, ok, err
	}
	return bp.pageAt(idx), idx, true, nil
}

// PinForRefix bumps pin_cnt while the caller holds idx latched.
func (bp *BufferPool) PinForRefix(idx uint32) uint32 {
	bp.cb[idx].PinCnt.Inc()
	return idx
}

// RefixDirect acquires idx's latch directly, bypassing the hash table;
// pin_cnt must already be >= 1.
func (bp *BufferPool) RefixDirect(idx uint32, mode Mode, conditional bool) (storage.Page, error) {
	cb := &bp.cb[idx]
	if cb.PinCnt.Load() < 1 {
		return storage.Page{}, errInvariant(int32(idx), "refix_direct requires pin_cnt >= 1")
	}
	if !bp.latchTry(cb, mode, conditional) {
		return storage.Page{}, errFrameInUse(cb.PID.Load())
	}
	return bp.pageAt(idx), nil
}

// UnpinForRefix decrements pin_cnt.
func (bp *BufferPool) UnpinForRefix(idx uint32) { bp.cb[idx].PinCnt.Dec() }

// Unfix releases idx's latch, held in mode. If tryEvict is true, mode
// must be EX (eviction needs exclusive access); the frame is evicted
// only if it still passes the eviction predicate.
func (bp *BufferPool) Unfix(idx uint32, mode Mode, tryEvict bool) {
	cb := &bp.cb[idx]
	cb.RefCount.Dec()
	cb.PinCnt.Dec()
	if bp.evictioner != nil {
		bp.evictioner.OnUnfix(idx)
	}
	if tryEvict && mode == EX {
		if ok, _ := cb.evictable(bp.flushDirtyOK(), bp.swizzle.Enabled()); ok {
			bp.DoEvict(idx)
			return
		}
	}
	cb.Latch.Unlock(mode)
}

// MarkDirty records that idx was just mutated under an EX latch at lsn,
// updating its dirty flag, page_lsn, and the shared dirty-page table
// used for recovery EMLSN lookups.
func (bp *BufferPool) MarkDirty(idx uint32, lsn uint64) {
	cb := &bp.cb[idx]
	cb.Dirty.Store(true)
	cb.PageLSN.Store(lsn)
	if cb.RecLSN.Load() == 0 {
		cb.RecLSN.Store(lsn)
	}
	if bp.dirty != nil {
		bp.dirty.MarkDirty(cb.PID.Load(), lsn)
	}
}

// BatchPrefetch grabs n free frames, reads them with one vectored I/O,
// and inserts each into the hash table; a concurrently-inserted pid
// releases its frame back to the free list.
func (bp *BufferPool) BatchPrefetch(store, startPID uint32, n int) error {
	idxs := make([]uint32, 0, n)
	rollback := func() {
		for _, idx := range idxs {
			bp.free.Enqueue(idx)
		}
	}
	for i := 0; i < n; i++ {
		idx, ok := bp.acquireFreeFrame()
		if !ok {
			rollback()
			return errEvictionStuck(bp.cfg.EvictionMaxAttempts)
		}
		idxs = append(idxs, idx)
	}

	frames := make([][]byte, n)
	for i, idx := range idxs {
		frames[i] = bp.bufs[idx]
	}
	if err := bp.vol.ReadVector(store, startPID, frames); err != nil {
		rollback()
		return errIO(startPID, err)
	}

	for i, idx := range idxs {
		pid := startPID + uint32(i)
		if _, won := bp.table.InsertIfAbsent(pid, idx, NullFrame); !won {
			bp.free.Enqueue(idx)
			continue
		}
		cb := &bp.cb[idx]
		page := storage.Page{Buf: bp.bufs[idx]}
		cb.reset()
		cb.Used.Store(true)
		cb.PID.Store(pid)
		cb.Store.Store(store)
		cb.Tag.Store(uint32(page.Tag()))
		cb.HasFosterChild.Store(page.HasFosterChild())
	}
	return nil
}

// FuzzyCheckpoint snapshots, without latches, every used-and-dirty
// frame's (pid, page_lsn, max(rec_lsn, page_lsn)).
func (bp *BufferPool) FuzzyCheckpoint() []CheckpointEntry {
	var out []CheckpointEntry
	for i := 1; i < bp.n; i++ {
		cb := &bp.cb[i]
		if !cb.Used.Load() || !cb.Dirty.Load() {
			continue
		}
		pid := cb.PID.Load()
		pageLSN := cb.PageLSN.Load()
		recLSN := cb.RecLSN.Load()
		if recLSN < pageLSN {
			recLSN = pageLSN
		}
		out = append(out, CheckpointEntry{PageID: pid, PageLSN: pageLSN, RecLSN: recLSN})
	}
	return out
}

// SwitchParent updates the hash-table entry's parent-frame field for
// childPID when its cached parent changes.
func (bp *BufferPool) SwitchParent(childPID, newParentFrame uint32) {
	pair, ok := bp.table.Lookup(childPID)
	if !ok {
		return
	}
	if pair.Parent() != newParentFrame {
		pair.SetParent(newParentFrame)
		bp.cb[pair.Self].ParentFrame.Store(newParentFrame)
	}
}

// UnswizzlePagePointer clears childFrame's swizzled flag and rewrites
// parentFrame's slotInParent to hold the persistent id. The caller must
// hold both parentFrame and the child frame EX-latched.
func (bp *BufferPool) UnswizzlePagePointer(parentFrame uint32, slotInParent int) (uint32, error) {
	page := bp.pageAt(parentFrame)
	v, err := page.ChildSlot(slotInParent)
	if err != nil {
		return 0, err
	}
	frame, ok := bp.swizzle.Decode(v)
	if !ok {
		return v, nil
	}
	childCB := &bp.cb[frame]
	pid := childCB.PID.Load()
	if err := page.SetChildSlot(slotInParent, pid); err != nil {
		return 0, err
	}
	childCB.Swizzled.Store(false)
	childCB.ParentFrame.Store(NullFrame)
	return pid, nil
}

// SetMediaFailure opens a failure window during which reads may be
// served from the backup device and a restore coordinator gates
// fetches.
func (bp *BufferPool) SetMediaFailure(coord *restore.Coordinator, bg *restore.BackgroundRestorer) {
	bp.restoreMu.Lock()
	bp.restoreCoord = coord
	bp.bgRestorer = bg
	bp.restoreMu.Unlock()
	bp.mediaFailure.Store(true)
	if bg != nil {
		bg.Fork()
	}
	if bp.log != nil {
		n := uint32(0)
		if coord != nil {
			n = uint32(coord.Remaining())
		}
		_, _ = bp.log.Append(wal.Record{Type: wal.RestoreBegin, RestoreN: n})
	}
}

// UnsetMediaFailure closes the failure window. Rather than leaving the
// background restorer's goroutine running unjoined, it joins the
// restorer at this safe point before returning.
func (bp *BufferPool) UnsetMediaFailure() error {
	bp.mediaFailure.Store(false)

	bp.restoreMu.Lock()
	bg := bp.bgRestorer
	bp.bgRestorer = nil
	bp.restoreCoord = nil
	bp.restoreMu.Unlock()

	var errs error
	if bg != nil {
		bg.Join()
	}
	if bp.log != nil {
		_, err := bp.log.Append(wal.Record{Type: wal.RestoreEnd})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Close stops the async evictioner (if any) and the wired collaborators
// this pool started.
func (bp *BufferPool) Close() error {
	if bp.asyncEvictioner != nil {
		bp.asyncEvictioner.Stop()
	}
	var errs error
	if bp.log != nil {
		errs = multierr.Append(errs, bp.log.Close())
	}
	return errs
}
