package evict

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/tuannm99/novasql/pkg/clockx"
	"github.com/tuannm99/novasql/pkg/htdeque"
)

const (
	carT1 = 0
	carT2 = 1
)

// Car implements CAR (Clock with Adaptive Replacement): two clocks T1/T2
// over live frames and two ghost deques B1/B2 of recently evicted page
// ids, with an adaptive target size p.
//
// A single mutex serializes every structural change (clock membership,
// B1/B2, p); UpdateOnPageHit/OnUnfix only set a bit atomically and hold
// no mutex, so a hot fix/unfix path never contends with eviction's
// bookkeeping. PickVictim holds that mutex across its TryLatchEX calls,
// which is safe only because TryLatchEX never blocks — holding the
// structural mutex while actually blocked on a frame latch would create
// a lock-order cycle with a fixer trying to take the same latch.
type Car struct {
	host Host
	c    int // capacity: frames this policy is allowed to cache

	mu         sync.Mutex
	clocks     *clockx.MultiClock[uint32] // slot value = pid
	b1, b2     *htdeque.HashtableDeque[uint32]
	p          int
	handMoves  int
	wakeCleaner func(block bool, count int)

	referenced []atomic.Bool

	// pending holds a victim PickVictim has pulled out of its clock but
	// whose eviction has not yet been confirmed by EvictOne. The ghost-list
	// push and clock-membership loss only become permanent on success; a
	// failed eviction puts the frame back at the tail of the clock it came
	// from instead of leaving it live but untracked.
	pending map[uint32]carPending
}

type carPending struct {
	clock int
	pid   uint32
}

func NewCar(host Host, capacity int, wakeCleaner func(block bool, count int)) *Car {
	n := host.NumFrames()
	return &Car{
		host:        host,
		c:           capacity,
		clocks:      clockx.NewMultiClock[uint32](n, 2),
		b1:          htdeque.New[uint32](capacity),
		b2:          htdeque.New[uint32](capacity),
		wakeCleaner: wakeCleaner,
		referenced:  make([]atomic.Bool, n),
		pending:     make(map[uint32]carPending),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// UpdateOnPageHit sets the referenced bit; no mutex involved.
func (c *Car) UpdateOnPageHit(idx uint32) {
	if int(idx) < len(c.referenced) {
		c.referenced[idx].Store(true)
	}
}

// OnUnfix sets the referenced bit, like UpdateOnPageHit; no mutex involved.
func (c *Car) OnUnfix(idx uint32) {
	if int(idx) < len(c.referenced) {
		c.referenced[idx].Store(true)
	}
}

func (c *Car) OnFixed(uint32)                {}
func (c *Car) OnDirty(uint32)                {}
func (c *Car) OnBlocked(uint32)              {}
func (c *Car) OnSwizzled(uint32)             {}
func (c *Car) OnExplicitlyUnbuffered(uint32) {}
func (c *Car) OnPointerSwizzling(uint32)     {}

// ReleaseInternalLatches is a no-op: c.mu is only ever held for the
// duration of a single PickVictim/OnMiss/EvictOne call, never parked
// across a suspension point, so there is nothing to force-release.
func (c *Car) ReleaseInternalLatches() {}

// OnMiss runs the CAR adaptation rule for a page freshly loaded into idx.
func (c *Car) OnMiss(idx, pid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.b1.Contains(pid):
		inc := maxInt(1, c.b2.Len()/maxInt(1, c.b1.Len()))
		c.p = minInt(c.p+inc, c.c)
		_ = c.b1.Remove(pid)
		c.clocks.AddTail(carT2, int(idx), pid)
	case c.b2.Contains(pid):
		inc := maxInt(1, c.b1.Len()/maxInt(1, c.b2.Len()))
		c.p = maxInt(c.p-inc, 0)
		_ = c.b2.Remove(pid)
		c.clocks.AddTail(carT2, int(idx), pid)
	default:
		if c.clocks.SizeOf(carT1)+c.b1.Len() >= c.c {
			_, _ = c.b1.PopFront()
		} else if c.clocks.SizeOf(carT1)+c.clocks.SizeOf(carT2)+c.b1.Len()+c.b2.Len() >= 2*c.c {
			_, _ = c.b2.PopFront()
		}
		c.clocks.AddTail(carT1, int(idx), pid)
	}
	if int(idx) < len(c.referenced) {
		c.referenced[idx].Store(false)
	}
}

func (c *Car) chooseClock() int {
	if c.clocks.SizeOf(carT1) >= maxInt(1, c.p) {
		return carT1
	}
	return carT2
}

// PickVictim walks the chosen clock's head and returns the first
// unreferenced, evictable frame it finds, EX-latched and held aside as
// pending for EvictOne, clearing referenced bits and moving the head
// along the way, switching clocks when one is blocked.
func (c *Car) PickVictim() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.chooseClock()
	maxAttempts := 2*(c.clocks.SizeOf(carT1)+c.clocks.SizeOf(carT2)) + 4
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx, pid, ok := c.clocks.GetHead(cur)
		if !ok {
			other := 1 - cur
			if _, _, ok2 := c.clocks.GetHead(other); !ok2 {
				return 0, false
			}
			cur = other
			continue
		}
		if int(idx) < len(c.referenced) && c.referenced[idx].Load() {
			c.referenced[idx].Store(false)
			c.clocks.MoveHead(cur)
			c.handMoves++
			if c.c > 0 && c.handMoves%c.c == 0 && c.wakeCleaner != nil {
				c.wakeCleaner(false, maxInt(1, c.c/10))
			}
			continue
		}
		if !c.host.TryLatchEX(uint32(idx)) {
			cur = 1 - cur
			continue
		}
		if ok2, _ := c.host.IsEvictable(uint32(idx)); !ok2 {
			c.host.UnlatchEX(uint32(idx))
			cur = 1 - cur
			continue
		}
		c.clocks.RemoveHead(cur)
		c.pending[uint32(idx)] = carPending{clock: cur, pid: pid}
		return uint32(idx), true
	}
	return 0, false
}

// EvictOne wraps the host's do-eviction procedure. The ghost-list push and
// the clock slot PickVictim pulled idx out of only become permanent once
// DoEvict actually succeeds; on failure idx is still a live, buffered
// frame, so it goes back on its clock instead of sitting untracked.
func (c *Car) EvictOne(idx uint32) bool {
	ok, _ := c.host.DoEvict(idx)

	c.mu.Lock()
	defer c.mu.Unlock()
	pend, found := c.pending[idx]
	delete(c.pending, idx)
	if !found {
		return ok
	}
	if ok {
		if pend.clock == carT1 {
			_ = c.b1.PushBack(pend.pid)
		} else {
			_ = c.b2.PushBack(pend.pid)
		}
	} else {
		c.clocks.AddTail(pend.clock, int(idx), pend.pid)
	}
	return ok
}
