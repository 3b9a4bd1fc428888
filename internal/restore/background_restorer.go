package restore

import (
	"log/slog"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

// OnDoneFunc is invoked once every segment has been restored; the buffer
// pool core uses it to drop its warmup-time restore coordinator
// reference and stop gating fetches.
type OnDoneFunc func()

// BackgroundRestorer walks a Coordinator's segments to completion on its
// own goroutine, so ordinary fixes are never blocked on restore unless
// they land on a segment nobody has reached yet (Coordinator.Fetch
// handles that case synchronously).
type BackgroundRestorer struct {
	coord  *Coordinator
	onDone OnDoneFunc

	priority chan int32
	stop     chan struct{}
	running  atomic.Bool
	wg       conc.WaitGroup
}

func NewBackgroundRestorer(coord *Coordinator, onDone OnDoneFunc) *BackgroundRestorer {
	return &BackgroundRestorer{
		coord:    coord,
		onDone:   onDone,
		priority: make(chan int32, 16),
		stop:     make(chan struct{}),
	}
}

// Fork starts the background walk over every segment, in order, honoring
// priority requests pushed by Wakeup first.
func (b *BackgroundRestorer) Fork() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.wg.Go(b.loop)
}

func (b *BackgroundRestorer) loop() {
	next := int32(0)
	for {
		select {
		case <-b.stop:
			return
		case seg := <-b.priority:
			b.restore(seg)
		default:
			if b.coord.segmentCount > 0 && int(next) >= b.coord.segmentCount {
				if b.onDone != nil {
					b.onDone()
				}
				return
			}
			b.restore(next)
			next++
		}
	}
}

func (b *BackgroundRestorer) restore(seg int32) {
	b.coord.mu.Lock()
	already := b.coord.done[seg]
	b.coord.mu.Unlock()
	if already {
		return
	}
	if err := b.coord.restorer.RestoreSegment(seg); err != nil {
		slog.Error("background_restorer: restore failed", "segment", seg, "err", err)
		return
	}
	b.coord.mu.Lock()
	b.coord.done[seg] = true
	b.coord.mu.Unlock()
}

// Wakeup asks the restorer to prioritize seg, used when a fetch lands on
// a segment the ambient walk has not reached yet.
func (b *BackgroundRestorer) Wakeup(seg int32) {
	if !b.running.Load() {
		return
	}
	select {
	case b.priority <- seg:
	default:
	}
}

// Join blocks until the background walk has finished every segment.
func (b *BackgroundRestorer) Join() {
	b.wg.Wait()
}

// Stop signals the background walk to exit without necessarily having
// finished every segment.
func (b *BackgroundRestorer) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	close(b.stop)
	b.wg.Wait()
}
