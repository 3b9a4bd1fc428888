package evict

import (
	"sync"

	"github.com/tuannm99/novasql/internal/storage"
)

// fakeHost is a minimal in-memory Host/Unswizzler used across this
// package's tests: frame i is evictable iff evictable[i] is true, and
// latching is a per-frame locked flag in a map guarded by one mutex (no
// real page buffers involved).
type fakeHost struct {
	mu         sync.Mutex
	n          int
	locked     map[uint32]bool
	evictable  map[uint32]bool
	tags       map[uint32]storage.Tag
	unevict    map[uint32]bool
	evicted    []uint32
	doEvictErr map[uint32]string
}

func newFakeHost(n int) *fakeHost {
	return &fakeHost{
		n:          n,
		locked:     make(map[uint32]bool),
		evictable:  make(map[uint32]bool),
		tags:       make(map[uint32]storage.Tag),
		unevict:    make(map[uint32]bool),
		doEvictErr: make(map[uint32]string),
	}
}

func (h *fakeHost) NumFrames() int { return h.n }

func (h *fakeHost) TryLatchEX(idx uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.locked[idx] {
		return false
	}
	h.locked[idx] = true
	return true
}

func (h *fakeHost) UnlatchEX(idx uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locked[idx] = false
}

func (h *fakeHost) IsEvictable(idx uint32) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evictable[idx] {
		return true, ""
	}
	return false, "fixed"
}

func (h *fakeHost) DoEvict(idx uint32) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() { h.locked[idx] = false }()
	if reason, bad := h.doEvictErr[idx]; bad {
		return false, reason
	}
	h.evicted = append(h.evicted, idx)
	return true, ""
}

func (h *fakeHost) TagOf(idx uint32) storage.Tag { return h.tags[idx] }

func (h *fakeHost) RandomFrame() uint32 {
	if h.n <= 1 {
		return 1
	}
	return uint32(1 + (len(h.evicted) % (h.n - 1)))
}

func (h *fakeHost) TryCool(idx uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictable[idx] = true
	return true
}

func (h *fakeHost) Unevictable(idx uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unevict[idx]
}

func (h *fakeHost) setEvictable(idx uint32, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictable[idx] = ok
}
