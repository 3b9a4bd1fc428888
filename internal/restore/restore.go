// Package restore implements the buffer pool's "Restore interface
// (consumed)": a coordinator that gates fetches during a media-failure
// or instant-restore window, and a background restorer that walks the
// volume's segments back into shape while fixes keep flowing.
package restore

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// SegmentRestorer rebuilds one backup segment onto the primary volume.
// The buffer pool core never reads or writes segment bytes itself; it
// only asks the coordinator to make sure a page id is safe to read.
type SegmentRestorer interface {
	RestoreSegment(segNo int32) error
}

// Coordinator is the "RestoreCoordinator(segment_size, segment_count,
// restorer, virgin, instant, start_locked)" object: it tracks which
// segments have been restored and gates Fetch until they are.
type Coordinator struct {
	segmentSize  int
	segmentCount int
	restorer     SegmentRestorer
	virgin       bool
	instant      bool

	mu        sync.Mutex
	locked    bool
	done      map[int32]bool
	started   atomic.Bool
	backupLSN uint64
	failureLSN uint64
}

func NewCoordinator(segmentSize, segmentCount int, restorer SegmentRestorer, virgin, instant, startLocked bool) *Coordinator {
	return &Coordinator{
		segmentSize:  segmentSize,
		segmentCount: segmentCount,
		restorer:     restorer,
		virgin:       virgin,
		instant:      instant,
		locked:       startLocked,
		done:         make(map[int32]bool),
	}
}

// SetLSNs records the backup's known-current LSN and the LSN at which
// the media failure window opened; Fetch uses neither directly, but
// callers (the buffer pool's media-failure gating) read them back to
// decide whether a page needs recovery after restore.
func (c *Coordinator) SetLSNs(backup, failure uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backupLSN = backup
	c.failureLSN = failure
}

func (c *Coordinator) LSNs() (backup, failure uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backupLSN, c.failureLSN
}

// Start releases a coordinator created with start_locked = true, letting
// Fetch proceed.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	c.locked = false
	c.mu.Unlock()
	c.started.Store(true)
	return nil
}

func (c *Coordinator) segmentOf(pid uint32) int32 {
	return int32(int(pid) / c.segmentSize)
}

// Fetch ensures the segment holding pid has been restored, restoring it
// synchronously on the caller's goroutine if nobody has yet. A virgin
// coordinator (no backup present) treats every segment as already
// restored.
func (c *Coordinator) Fetch(pid uint32) error {
	if c.virgin {
		return nil
	}
	seg := c.segmentOf(pid)
	if seg < 0 || (c.segmentCount > 0 && int(seg) >= c.segmentCount) {
		return fmt.Errorf("restore: pid %d maps to out-of-range segment %d", pid, seg)
	}

	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return fmt.Errorf("restore: coordinator not started")
	}
	if c.done[seg] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.restorer.RestoreSegment(seg); err != nil {
		return err
	}

	c.mu.Lock()
	c.done[seg] = true
	finished := len(c.done) >= c.segmentCount
	c.mu.Unlock()
	_ = finished
	return nil
}

// Remaining reports how many segments have not yet been restored.
func (c *Coordinator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segmentCount - len(c.done)
}
