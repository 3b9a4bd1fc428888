package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novasql/pkg/bx"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
)

const (
	magicU32   uint32 = 0x4C41574E // "NWAL"
	versionU16        = 2
)

// Manager is the buffer pool's "Log/archiver interface (consumed)": it
// emits the small bookkeeping records the pool needs for redo
// (fetch_page, evict_page, update_emlsn, restore_begin/end, warmup_done)
// and can replay them back in LSN order.
type Manager struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	lsn       uint64
	flushed   uint64
	archived  uint64
	archiveFn func(Record) error
}

// Open opens (creating if needed) the log file under dir. archiveFn, if
// non-nil, is invoked for every record as ArchiveUntilLSN advances past
// it — the hook a log archiver would use to ship records off to cold
// storage.
func Open(dir string, archiveFn func(Record) error) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path, archiveFn: archiveFn}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// Append assigns the next LSN to rec and durably queues it (not yet
// fsynced — see Flush). Returns the assigned LSN.
func (m *Manager) Append(rec Record) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	rec.LSN = m.lsn

	payload := encodeRecord(rec)
	fixed := 4 + 2 + 4 + 4 + 8 // magic ver totalLen crc lsn
	totalLen := fixed + len(payload)

	buf := make([]byte, totalLen)
	off := 0
	bx.PutU32At(buf, off, magicU32)
	off += 4
	bx.PutU16At(buf, off, versionU16)
	off += 2
	bx.PutU32At(buf, off, uint32(totalLen))
	off += 4
	crcOff := off
	off += 4 // placeholder
	bx.PutU64At(buf, off, rec.LSN)
	off += 8
	copy(buf[off:], payload)

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32At(buf, crcOff, crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return rec.LSN, nil
}

var ErrNoWALFile = errors.New("wal: wal file not found")

func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	if upto == 0 || upto <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = upto
	return nil
}

// ArchiveUntilLSN invokes the archive hook for every unarchived record up
// to and including lsn, then advances the archive watermark.
func (m *Manager) ArchiveUntilLSN(lsn uint64) error {
	m.mu.Lock()
	if lsn <= m.archived || m.archiveFn == nil {
		m.archived = max(m.archived, lsn)
		m.mu.Unlock()
		return nil
	}
	path := m.path
	fn := m.archiveFn
	from := m.archived
	m.mu.Unlock()

	if err := replayFile(path, func(rec Record) error {
		if rec.LSN <= from || rec.LSN > lsn {
			return nil
		}
		return fn(rec)
	}); err != nil {
		return err
	}
	m.mu.Lock()
	m.archived = max(m.archived, lsn)
	m.mu.Unlock()
	return nil
}

// Replay calls apply, in LSN order, for every record in the log.
func (m *Manager) Replay(apply func(Record) error) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()
	return replayFile(path, apply)
}

func replayFile(path string, apply func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) ||
				errors.Is(err, io.ErrUnexpectedEOF) ||
				errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if err := apply(*rec); err != nil {
			return err
		}
	}
}

func readOne(r *bufio.Reader) (*Record, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if bx.U32(hdr[:]) != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	if bx.U16(verB[:]) != versionU16 {
		return nil, ErrBadRecord
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	minLen := uint32(4 + 2 + 4 + 4 + 8)
	if totalLen < minLen {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(rest) != wantCRC {
		return nil, ErrBadCRC
	}

	lsn := bx.U64At(rest, 0)
	rec := decodeRecord(lsn, rest[8:])
	return &rec, nil
}

func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64
	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.LSN > last {
			last = rec.LSN
		}
	}
	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
