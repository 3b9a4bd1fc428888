package evict

import (
	"sync"

	"github.com/tuannm99/novasql/pkg/htdeque"
)

// Unswizzler is the extra upcall LeanStore cooling needs beyond Host:
// it must itself perform the "with parent SH and self EX, unswizzle the
// parent slot" step, since that is a structural page mutation the
// generic Host surface does not expose.
type Unswizzler interface {
	Host
	// RandomFrame returns a uniformly random frame index in [1, N), used
	// or not, a candidate for the cooling-stage refill walk.
	RandomFrame() uint32
	// TryCool attempts to move idx into the cooling state: latch its
	// parent SH, latch idx EX (both non-blocking), unswizzle the parent
	// slot and clear idx's swizzled flag. Returns false (and releases
	// whatever it acquired) if any step is unavailable.
	TryCool(idx uint32) bool
	// Unevictable reports whether idx cannot be evicted as it stands:
	// unused frames, store nodes, roots, and, under swizzling, inner
	// pages and pages with a foster child.
	Unevictable(idx uint32) bool
}

// LeanStore implements the cooling-stage policy: a bounded deque of
// unswizzled frames (the only evictable candidates), refilled by
// sampling random frames when it runs low.
type LeanStore struct {
	host Unswizzler

	mu      sync.Mutex
	cooling *htdeque.HashtableDeque[uint32]
	target  int
}

// NewLeanStore builds a cooling-stage policy sized to
// ceil(n * fraction) frames.
func NewLeanStore(host Unswizzler, n int, fraction float64) *LeanStore {
	target := int(float64(n)*fraction + 0.999999)
	if target < 1 {
		target = 1
	}
	return &LeanStore{host: host, cooling: htdeque.New[uint32](target), target: target}
}

// refill samples random frames until the cooling deque holds at least
// half its target, skipping frames already cooling, unevictable, or
// that fail TryCool (already unlatched-only, already unswizzled, parent
// unavailable).
func (l *LeanStore) refill() {
	attempts := 0
	maxAttempts := l.target * 8
	for l.cooling.Len() < l.target/2+1 && attempts < maxAttempts {
		attempts++
		idx := l.host.RandomFrame()
		if idx == 0 || l.cooling.Contains(idx) || l.host.Unevictable(idx) {
			continue
		}
		if !l.host.TryCool(idx) {
			continue
		}
		_ = l.cooling.PushBack(idx)
	}
}

func (l *LeanStore) PickVictim() (uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cooling.Len() < l.target/2 {
		l.refill()
	}
	for {
		idx, err := l.cooling.PopFront()
		if err != nil {
			return 0, false
		}
		if !l.host.TryLatchEX(idx) {
			continue
		}
		if ok, _ := l.host.IsEvictable(idx); !ok {
			l.host.UnlatchEX(idx)
			continue
		}
		return idx, true
	}
}

func (l *LeanStore) EvictOne(idx uint32) bool {
	ok, _ := l.host.DoEvict(idx)
	return ok
}

func (l *LeanStore) UpdateOnPageHit(uint32)         {}
func (l *LeanStore) OnUnfix(uint32)                 {}
func (l *LeanStore) OnMiss(uint32, uint32)           {}
func (l *LeanStore) OnFixed(uint32)                  {}
func (l *LeanStore) OnDirty(uint32)                  {}
func (l *LeanStore) OnBlocked(uint32)                {}
func (l *LeanStore) OnSwizzled(uint32)               {}
func (l *LeanStore) OnExplicitlyUnbuffered(uint32)   {}

// OnPointerSwizzling removes idx from the cooling deque: the page became
// hot again (a swizzled pointer to it was just installed), so it is no
// longer a cooling candidate.
func (l *LeanStore) OnPointerSwizzling(idx uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.cooling.Remove(idx)
}

func (l *LeanStore) ReleaseInternalLatches() {}
