package wal

import "github.com/tuannm99/novasql/pkg/bx"

// Type tags the payload carried by a Record. These are exactly the record
// kinds the buffer pool core is allowed to emit: it never writes data
// records, only the bookkeeping needed to redo its own bookkeeping.
type Type uint8

const (
	FetchPage Type = iota + 1
	EvictPage
	UpdateEMLSN
	RestoreBegin
	RestoreEnd
	WarmupDone
)

func (t Type) String() string {
	switch t {
	case FetchPage:
		return "fetch_page"
	case EvictPage:
		return "evict_page"
	case UpdateEMLSN:
		return "update_emlsn"
	case RestoreBegin:
		return "restore_begin"
	case RestoreEnd:
		return "restore_end"
	case WarmupDone:
		return "warmup_done"
	default:
		return "unknown"
	}
}

// Record is the union of every payload the buffer pool core logs. Only
// the fields relevant to Type are meaningful; the rest are zero.
type Record struct {
	LSN  uint64
	Type Type

	PageID     uint32 // fetch_page, evict_page, update_emlsn
	Store      uint32 // fetch_page
	FetchedLSN uint64 // fetch_page: page_lsn observed at fetch time
	Frame      uint32 // evict_page

	ChildSlot uint32 // update_emlsn: which slot in the parent
	EMLSN     uint64 // update_emlsn: new expected LSN

	RestoreN uint32 // restore_begin: number of segments still to restore
}

// fixed payload width regardless of Type: simplest encoding that keeps
// every record the same size, at the cost of a few unused bytes on the
// lighter record kinds. Framing overhead is already dwarfed by the 8KiB
// pages this log sits below.
const payloadWidth = 1 + 4 + 4 + 8 + 4 + 4 + 8 + 4 // lsn is framed separately

func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+4+8+4+4+8+4)
	off := 0
	buf[off] = byte(r.Type)
	off++
	bx.PutU32At(buf, off, r.PageID)
	off += 4
	bx.PutU32At(buf, off, r.Store)
	off += 4
	bx.PutU64At(buf, off, r.FetchedLSN)
	off += 8
	bx.PutU32At(buf, off, r.Frame)
	off += 4
	bx.PutU32At(buf, off, r.ChildSlot)
	off += 4
	bx.PutU64At(buf, off, r.EMLSN)
	off += 8
	bx.PutU32At(buf, off, r.RestoreN)
	return buf
}

func decodeRecord(lsn uint64, buf []byte) Record {
	off := 0
	typ := Type(buf[off])
	off++
	pageID := bx.U32At(buf, off)
	off += 4
	store := bx.U32At(buf, off)
	off += 4
	fetchedLSN := bx.U64At(buf, off)
	off += 8
	frame := bx.U32At(buf, off)
	off += 4
	childSlot := bx.U32At(buf, off)
	off += 4
	emlsn := bx.U64At(buf, off)
	off += 8
	restoreN := bx.U32At(buf, off)

	return Record{
		LSN: lsn, Type: typ,
		PageID: pageID, Store: store, FetchedLSN: fetchedLSN,
		Frame: frame, ChildSlot: childSlot, EMLSN: emlsn,
		RestoreN: restoreN,
	}
}
