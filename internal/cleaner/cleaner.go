// Package cleaner implements the buffer pool's page-cleaner collaborator:
// a background loop the eviction engine kicks when it cannot find enough
// evictable frames because too many are dirty.
package cleaner

import (
	"log/slog"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

// FlushFunc flushes up to count dirty frames to the volume and reports
// how many it actually cleaned. The buffer pool core supplies this; the
// cleaner itself has no notion of frames or pages.
type FlushFunc func(count int) (flushed int, err error)

type wakeupRequest struct {
	count int
	done  chan struct{}
}

// Cleaner is the in-process implementation of the "Cleaner interface
// (consumed)": fork, stop, wakeup(block, count). It never decides *when*
// to clean on its own; it only reacts to wakeups.
type Cleaner struct {
	flush   FlushFunc
	running atomic.Bool
	wake    chan wakeupRequest
	stop    chan struct{}
	wg      conc.WaitGroup
}

func New(flush FlushFunc) *Cleaner {
	return &Cleaner{
		flush: flush,
		wake:  make(chan wakeupRequest, 16),
		stop:  make(chan struct{}),
	}
}

// Fork starts the cleaner's background goroutine. Calling Fork twice
// without an intervening Stop is a no-op.
func (c *Cleaner) Fork() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Go(c.loop)
}

func (c *Cleaner) loop() {
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.wake:
			n, err := c.flush(req.count)
			if err != nil {
				slog.Error("cleaner: flush failed", "requested", req.count, "err", err)
			} else {
				slog.Debug("cleaner: flushed", "requested", req.count, "flushed", n)
			}
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

// Wakeup asks the cleaner to flush up to count dirty frames. When block
// is true, Wakeup does not return until that round completes; otherwise
// it is a best-effort kick that drops silently if the cleaner's queue is
// full, matching the "kick" the async evictioner issues after repeated
// pick failures.
func (c *Cleaner) Wakeup(block bool, count int) {
	if !c.running.Load() {
		return
	}
	req := wakeupRequest{count: count}
	if block {
		req.done = make(chan struct{})
	}
	select {
	case c.wake <- req:
	default:
		if block {
			// Queue is saturated; fall back to a synchronous flush so a
			// blocking caller never silently gets nothing.
			_, err := c.flush(count)
			if err != nil {
				slog.Error("cleaner: synchronous fallback flush failed", "err", err)
			}
		}
		return
	}
	if block {
		<-req.done
	}
}

// Stop signals the background goroutine to exit and waits for it.
func (c *Cleaner) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stop)
	c.wg.Wait()
}
