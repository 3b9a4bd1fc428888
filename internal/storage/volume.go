package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novasql/pkg/util"
)

// FileSet opens the segment files backing one store's pages.
type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet represents a local directory + base file name.
// Segments are stored as: Base, Base.1, Base.2, ...
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	path := filepath.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
	if err := os.MkdirAll(lfs.Dir, 0o755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}

func pagesPerSegment() int32 {
	return SegmentSize / PageSize
}

func locate(pageID uint32) (segNo int32, offset int64) {
	pps := pagesPerSegment()
	segNo = int32(pageID) / pps
	pageInSeg := int32(pageID) % pps
	return segNo, int64(pageInSeg) * PageSize
}

// Volume is the on-disk side of the buffer pool's "Volume interface
// (consumed)": per-store segment files addressed by page id, plus an
// optional backup device used during media restore.
type Volume struct {
	mu     sync.RWMutex
	stores map[uint32]FileSet
	roots  map[uint32]uint32

	backupFS  FileSet
	backupLSN uint64
}

func NewVolume() *Volume {
	return &Volume{
		stores: make(map[uint32]FileSet),
		roots:  make(map[uint32]uint32),
	}
}

// RegisterStore binds a store id to the FileSet holding its pages and
// records its root page id, so GetStoreRoot can answer without a read.
func (v *Volume) RegisterStore(store uint32, fs FileSet, rootPID uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stores[store] = fs
	v.roots[store] = rootPID
}

// RenameStore moves store's segment files to newFS and rebinds store to
// it. Used when a restore completes into a staging directory and the
// staged segments need to be promoted into the live volume path.
func (v *Volume) RenameStore(store uint32, newFS LocalFileSet) error {
	v.mu.Lock()
	fs, ok := v.stores[store]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("storage: unknown store %d", store)
	}
	oldLFS, ok := fs.(LocalFileSet)
	if !ok {
		return fmt.Errorf("storage: store %d is not backed by a local file set", store)
	}
	if err := RenameAllSegments(oldLFS, newFS); err != nil {
		return err
	}
	v.mu.Lock()
	v.stores[store] = newFS
	v.mu.Unlock()
	return nil
}

// DropStore unregisters store and removes every segment file backing it,
// if it is local. A store on a non-local FileSet (nothing in this module
// implements one yet, but the interface allows it) is unregistered without
// a filesystem cleanup.
func (v *Volume) DropStore(store uint32) error {
	v.mu.Lock()
	fs, ok := v.stores[store]
	delete(v.stores, store)
	delete(v.roots, store)
	v.mu.Unlock()
	if !ok {
		return nil
	}
	lfs, ok := fs.(LocalFileSet)
	if !ok {
		return nil
	}
	return RemoveAllSegments(lfs)
}

func (v *Volume) fileSet(store uint32) (FileSet, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	fs, ok := v.stores[store]
	if !ok {
		return nil, fmt.Errorf("storage: unknown store %d", store)
	}
	return fs, nil
}

// GetStoreRoot returns the root page id of store, or false if the store
// has not been registered.
func (v *Volume) GetStoreRoot(store uint32) (uint32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pid, ok := v.roots[store]
	return pid, ok
}

// ReadPage reads exactly one page (PageSize bytes) into dst. If the
// underlying file is shorter than the requested offset+PageSize, the
// remainder is zero-filled — pages are lazily materialized by whoever
// first fixes them.
func (v *Volume) ReadPage(store, pageID uint32, dst []byte) error {
	fs, err := v.fileSet(store)
	if err != nil {
		return err
	}
	return readPageFrom(fs, pageID, dst)
}

func readPageFrom(fs FileSet, pageID uint32, dst []byte) error {
	if len(dst) != PageSize {
		return ErrReadExceedPageSize
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// ReadVector reads n consecutive pages starting at startPID into frames,
// backing batch_prefetch. Each element of frames must already be sized
// to PageSize.
func (v *Volume) ReadVector(store, startPID uint32, frames [][]byte) error {
	fs, err := v.fileSet(store)
	if err != nil {
		return err
	}
	for i, dst := range frames {
		if err := readPageFrom(fs, startPID+uint32(i), dst); err != nil {
			return err
		}
	}
	return nil
}

// WritePage writes exactly one page (PageSize bytes) from src to disk at
// the location computed from pageID.
func (v *Volume) WritePage(store, pageID uint32, src []byte) error {
	fs, err := v.fileSet(store)
	if err != nil {
		return err
	}
	if len(src) != PageSize {
		return ErrWriteExceedPageSize
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page into memory and returns a Page wrapper. Pages
// whose on-disk bytes are all zero are treated as virgin and initialized
// in place with the given pageID.
func (v *Volume) LoadPage(store, pageID uint32) (Page, error) {
	buf := make([]byte, PageSize)
	if err := v.ReadPage(store, pageID, buf); err != nil {
		return Page{}, err
	}
	p := Page{Buf: buf}
	if p.IsUninitialized() {
		p.init(pageID)
	}
	return p, nil
}

// SavePage writes the in-memory Page back to disk. A page written back
// must never carry a swizzled child slot; callers are responsible for
// unswizzling before calling SavePage.
func (v *Volume) SavePage(store uint32, p Page) error {
	if len(p.Buf) != PageSize {
		return ErrWriteExceedPageSize
	}
	return v.WritePage(store, p.PageID(), p.Buf)
}

// NumUsedPages scans store's segments in order, stopping at the first
// empty one, and sums how many whole pages they hold.
func (v *Volume) NumUsedPages(store uint32) (uint32, error) {
	fs, err := v.fileSet(store)
	if err != nil {
		return 0, err
	}
	var total uint32
	for segNo := int32(0); ; segNo++ {
		f, err := fs.OpenSegment(segNo)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		info, statErr := f.Stat()
		_ = f.Close()
		if statErr != nil {
			return 0, statErr
		}
		if info.Size() <= 0 {
			break
		}
		total += uint32(info.Size() / int64(PageSize))
	}
	return total, nil
}

// OpenBackup attaches a backup device for media restore, resetting the
// backup LSN watermark to 0.
func (v *Volume) OpenBackup(fs FileSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.backupFS = fs
	v.backupLSN = 0
}

// CloseBackup detaches the backup device.
func (v *Volume) CloseBackup() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.backupFS = nil
}

// SetBackupLSN records the LSN the attached backup is known current up
// to; the restore coordinator drives this as it replays.
func (v *Volume) SetBackupLSN(lsn uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.backupLSN = lsn
}

func (v *Volume) GetBackupLSN() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.backupLSN
}

// ReadBackup reads n consecutive pages starting at pid from the backup
// device into dst.
func (v *Volume) ReadBackup(pid uint32, dst [][]byte) error {
	v.mu.RLock()
	fs := v.backupFS
	v.mu.RUnlock()
	if fs == nil {
		return fmt.Errorf("storage: no backup device attached")
	}
	for i, d := range dst {
		if err := readPageFrom(fs, pid+uint32(i), d); err != nil {
			return err
		}
	}
	return nil
}
