package bufpool

import (
	"sync"

	"go.uber.org/atomic"
)

// FramePair is the value the hash table maps a page id to: the frame
// holding it and the frame holding its cached parent (NullFrame if the
// page has no cached parent or the parent is not currently swizzled-to).
type FramePair struct {
	Self   uint32
	parent atomic.Uint32
}

func (p *FramePair) Parent() uint32     { return p.parent.Load() }
func (p *FramePair) SetParent(f uint32) { p.parent.Store(f) }

// FrameTable is the concurrent, non-blocking page-id -> frame/parent-pair
// map. Of any two races on the same key, exactly one insert must win and
// the loser must reclaim its pair; sync.Map's LoadOrStore gives exactly
// that with no extra bookkeeping, so it is used directly rather than
// hand-rolling open addressing with CAS loops.
type FrameTable struct {
	m    sync.Map // PageID -> *FramePair
	size atomic.Int64
}

func NewFrameTable() *FrameTable {
	return &FrameTable{}
}

// InsertIfAbsent inserts (pid -> (self, parent)) iff pid is not already
// present. Returns the pair that ended up in the table (the caller's, if
// it won the race, or the existing one otherwise) and whether the
// caller's insert won.
func (t *FrameTable) InsertIfAbsent(pid, self, parent uint32) (*FramePair, bool) {
	pair := &FramePair{Self: self}
	pair.parent.Store(parent)
	actual, loaded := t.m.LoadOrStore(pid, pair)
	if !loaded {
		t.size.Inc()
		return pair, true
	}
	return actual.(*FramePair), false
}

// Lookup returns the pair mapped to pid, if any.
func (t *FrameTable) Lookup(pid uint32) (*FramePair, bool) {
	v, ok := t.m.Load(pid)
	if !ok {
		return nil, false
	}
	return v.(*FramePair), true
}

// Erase removes pid's entry, if present.
func (t *FrameTable) Erase(pid uint32) {
	if _, ok := t.m.LoadAndDelete(pid); ok {
		t.size.Dec()
	}
}

// Len returns the approximate number of entries currently mapped.
func (t *FrameTable) Len() int {
	return int(t.size.Load())
}
