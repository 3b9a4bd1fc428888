// Package evict implements the buffer pool's evictioner family: a
// common Evictioner/Host contract, the Select-and-Filter composition,
// CAR, and LeanStore cooling — plus an async wrapper that runs any of
// them on its own goroutine.
//
// Evictioner and Host are split to resolve a cyclic ownership problem:
// the buffer pool core owns frames and latches, the evictioner owns the
// replacement policy's own bookkeeping (clocks, ghost lists, referenced
// bits), and the two talk through these two narrow interfaces instead of
// holding concrete references to each other.
package evict

import (
	"log/slog"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/internal/storage"
)

// Host is the narrow upcall surface a policy needs from the buffer pool
// core: enough to try frames as eviction candidates without the policy
// ever touching a control block or a page buffer directly.
type Host interface {
	// NumFrames returns N, the total frame count including the reserved
	// frame 0; candidate frames lie in [1, N).
	NumFrames() int
	// TryLatchEX attempts to EX-latch frame idx without blocking.
	TryLatchEX(idx uint32) bool
	// UnlatchEX releases an EX latch acquired via TryLatchEX.
	UnlatchEX(idx uint32)
	// IsEvictable is the non-destructive form of the eviction predicate;
	// idx must already be EX-latched by the caller.
	IsEvictable(idx uint32) (ok bool, reason string)
	// DoEvict runs the full do-eviction procedure on idx, which must
	// already be EX-latched by the caller; on return the latch has been
	// released regardless of outcome.
	DoEvict(idx uint32) (ok bool, reason string)
	// TagOf returns the page tag cached for idx, used by GCLOCK's
	// optional page-class discrimination.
	TagOf(idx uint32) storage.Tag
}

// Evictioner is the contract every replacement policy exposes so the
// buffer pool core can treat them interchangeably.
type Evictioner interface {
	// PickVictim returns an EX-latched frame index, or ok=false if no
	// candidate could be found this attempt.
	PickVictim() (idx uint32, ok bool)
	// EvictOne wraps the do-eviction procedure for idx, which must
	// already be EX-latched (typically the result of PickVictim).
	EvictOne(idx uint32) bool

	UpdateOnPageHit(idx uint32)
	OnUnfix(idx uint32)
	OnMiss(idx uint32, pid uint32)
	OnFixed(idx uint32)
	OnDirty(idx uint32)
	OnBlocked(idx uint32)
	OnSwizzled(idx uint32)
	OnExplicitlyUnbuffered(idx uint32)
	OnPointerSwizzling(idx uint32)

	// ReleaseInternalLatches is a diagnostic/shutdown hook for a policy
	// to drop an internal mutex it still holds. CAR and LeanStore never
	// hold theirs across calls, so for them it is a no-op.
	ReleaseInternalLatches()
}

// Async wraps any Evictioner to run pick-and-evict cycles on its own
// goroutine, woken whenever the caller observes the free list falling
// below eviction_batch_size. It evicts until the batch is filled or
// max_attempts consecutive picks fail, at which point it reports a fatal
// EvictionStuck condition through onFatal; after wakeupCleanerAttempts
// consecutive failures it kicks the cleaner first.
type Async struct {
	inner       Evictioner
	freeLen     func() int
	batchSize   int
	maxAttempts int
	wakeupCleanerAttempts int
	wakeCleaner func(block bool, count int)
	onFatal     func(error)

	wake    chan asyncWakeRequest
	stop    chan struct{}
	running atomic.Bool
	wg      conc.WaitGroup
}

type asyncWakeRequest struct {
	done chan struct{}
}

func NewAsync(inner Evictioner, freeLen func() int, batchSize, maxAttempts, wakeupCleanerAttempts int, wakeCleaner func(block bool, count int), onFatal func(error)) *Async {
	return &Async{
		inner:       inner,
		freeLen:     freeLen,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		wakeupCleanerAttempts: wakeupCleanerAttempts,
		wakeCleaner: wakeCleaner,
		onFatal:     onFatal,
		wake:        make(chan asyncWakeRequest, 1),
		stop:        make(chan struct{}),
	}
}

func (a *Async) Fork() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.wg.Go(a.loop)
}

func (a *Async) loop() {
	for {
		select {
		case <-a.stop:
			return
		case req := <-a.wake:
			a.runBatch()
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

func (a *Async) runBatch() {
	evicted := 0
	attempts := 0
	for a.freeLen() < a.batchSize && attempts < a.maxAttempts {
		idx, ok := a.inner.PickVictim()
		if !ok {
			attempts++
			if a.wakeupCleanerAttempts > 0 && attempts%a.wakeupCleanerAttempts == 0 && a.wakeCleaner != nil {
				a.wakeCleaner(false, a.batchSize)
			}
			continue
		}
		if a.inner.EvictOne(idx) {
			evicted++
			attempts = 0
		} else {
			attempts++
		}
	}
	if attempts >= a.maxAttempts && a.freeLen() < a.batchSize {
		slog.Error("evict: async evictioner exhausted attempts", "attempts", attempts, "evicted", evicted)
		if a.onFatal != nil {
			a.onFatal(ErrEvictionStuck(attempts))
		}
	}
}

// Wakeup nudges the async loop to run a batch; safe to call any number
// of times, extra wakeups while one is pending are dropped.
func (a *Async) Wakeup() {
	if !a.running.Load() {
		return
	}
	select {
	case a.wake <- asyncWakeRequest{}:
	default:
	}
}

// WakeupAndWait nudges the async loop and blocks until that batch
// completes, so a fixer that just found the free list empty can be sure
// a round ran before it checks again. If the loop is not running
// (Fork was never called, or Stop already ran), it falls back to
// running the batch synchronously on the caller's goroutine so a
// misconfigured pool still makes progress instead of hanging.
func (a *Async) WakeupAndWait() {
	if !a.running.Load() {
		a.runBatch()
		return
	}
	req := asyncWakeRequest{done: make(chan struct{})}
	select {
	case a.wake <- req:
	case <-a.stop:
		a.runBatch()
		return
	}
	select {
	case <-req.done:
	case <-a.stop:
	}
}

func (a *Async) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	close(a.stop)
	a.wg.Wait()
}
