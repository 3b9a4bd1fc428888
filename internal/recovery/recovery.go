// Package recovery implements the buffer pool's "Recovery interface
// (consumed)": a dirty-page EMLSN lookup and a single-page redo iterator,
// both driven off the wal package's record log.
package recovery

import (
	"sort"
	"sync"

	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/internal/wal"
)

// DirtyPageTable answers get_dirty_page_emlsn(pid) -> lsn: the LSN a
// dirty page was last known to be at, consulted when deciding whether a
// freshly-fixed page needs single-page redo before it is usable.
type DirtyPageTable struct {
	mu    sync.RWMutex
	emlsn map[uint32]uint64
}

func NewDirtyPageTable() *DirtyPageTable {
	return &DirtyPageTable{emlsn: make(map[uint32]uint64)}
}

// MarkDirty records that pid is dirty as of lsn, called whenever a frame
// transitions from clean to dirty.
func (d *DirtyPageTable) MarkDirty(pid uint32, lsn uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.emlsn[pid]; !ok || lsn < cur {
		d.emlsn[pid] = lsn
	}
}

// ClearDirty removes pid once it has been cleaned (flushed or evicted).
func (d *DirtyPageTable) ClearDirty(pid uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.emlsn, pid)
}

// GetDirtyPageEMLSN reports the recovery LSN for pid and whether pid is
// currently tracked as dirty.
func (d *DirtyPageTable) GetDirtyPageEMLSN(pid uint32) (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lsn, ok := d.emlsn[pid]
	return lsn, ok
}

// RedoIterator replays the records affecting one page's EMLSN-bearing
// slots between fromLSN and toLSN (inclusive), in LSN order. Only
// update_emlsn records carry page-content mutations the buffer pool
// core itself is responsible for; everything else the log carries is
// bookkeeping for a higher layer and is skipped here.
type RedoIterator struct {
	pid      uint32
	fromLSN  uint64
	toLSN    uint64
	records  []wal.Record
	pos      int
}

// Open builds a redo iterator for pid over [fromLSN, toLSN]. When
// useArchive is true, archived records are consulted through archiveLog
// in addition to the live log; archiveLog may be nil when useArchive is
// false.
func Open(liveLog, archiveLog *wal.Manager, pid uint32, fromLSN, toLSN uint64, useArchive bool) (*RedoIterator, error) {
	it := &RedoIterator{pid: pid, fromLSN: fromLSN, toLSN: toLSN}

	collect := func(mgr *wal.Manager) error {
		if mgr == nil {
			return nil
		}
		return mgr.Replay(func(r wal.Record) error {
			if r.Type != wal.UpdateEMLSN || r.PageID != pid {
				return nil
			}
			if r.LSN < fromLSN || r.LSN > toLSN {
				return nil
			}
			it.records = append(it.records, r)
			return nil
		})
	}

	if err := collect(liveLog); err != nil {
		return nil, err
	}
	if useArchive {
		if err := collect(archiveLog); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(it.records, func(i, j int) bool { return it.records[i].LSN < it.records[j].LSN })
	return it, nil
}

// Next advances to the next record in range, reporting whether one was
// available.
func (it *RedoIterator) Next() bool {
	if it.pos >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

// Apply redoes the current record's effect onto page: it rewrites the
// child-EMLSN slot the record targeted.
func (it *RedoIterator) Apply(page *storage.Page) error {
	if it.pos == 0 || it.pos > len(it.records) {
		return nil
	}
	rec := it.records[it.pos-1]
	return page.SetChildEMLSN(int(rec.ChildSlot), rec.EMLSN)
}
