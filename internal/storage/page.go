package storage

import "github.com/tuannm99/novasql/pkg/bx"

// Header offsets. Everything past HeaderSize is opaque payload owned by
// whatever layer sits above the buffer pool; this package and the buffer
// pool only ever look at the header.
const (
	offTag         = 0
	offFlags       = 1
	offPageID      = 2
	offStoreRoot   = 6
	offFosterChild = 10
	offNumSlots    = 14
	offChildSlots  = 18
)

var offChildEMLSN = offChildSlots + MaxChildSlots*childSlotSize

// Page wraps one fixed-size on-disk/in-memory page buffer. It is opaque
// except for the small header describing its tag, its own page id, the
// root id of the store it belongs to, a foster-child pointer, and a
// directory of child-page-id slots the buffer pool may swizzle in place.
type Page struct {
	Buf []byte
}

// NewPage wraps buf (must be exactly PageSize bytes) and initializes its
// header for pageID. The page starts with no tag, no foster child, and no
// child slots; callers above this package set those once they know what
// kind of page it is.
func NewPage(buf []byte, pageID uint32) Page {
	p := Page{Buf: buf}
	p.init(pageID)
	return p
}

func (p Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.Buf[offTag] = byte(TagUnset)
	bx.PutU32At(p.Buf, offPageID, pageID)
	bx.PutU32At(p.Buf, offStoreRoot, 0)
	bx.PutU32At(p.Buf, offFosterChild, 0)
	bx.PutU16At(p.Buf, offNumSlots, 0)
}

// IsUninitialized reports whether a freshly-read page buffer is all
// zeros, the signal LoadPage uses to distinguish "never written" from
// "on-disk but tagged unset".
func (p Page) IsUninitialized() bool {
	return p.Buf[offTag] == byte(TagUnset) && bx.U32At(p.Buf, offPageID) == 0
}

func (p Page) Tag() Tag {
	return Tag(p.Buf[offTag])
}

func (p Page) SetTag(t Tag) {
	p.Buf[offTag] = byte(t)
}

func (p Page) PageID() uint32 {
	return bx.U32At(p.Buf, offPageID)
}

// StoreRoot is the page id of the root page of the store this page
// belongs to. A page is itself a store root iff StoreRoot() == PageID().
func (p Page) StoreRoot() uint32 {
	return bx.U32At(p.Buf, offStoreRoot)
}

func (p Page) SetStoreRoot(pid uint32) {
	bx.PutU32At(p.Buf, offStoreRoot, pid)
}

func (p Page) IsStoreRoot() bool {
	return p.StoreRoot() == p.PageID()
}

// FosterChild is the transient linking pointer used during a B-tree page
// split; a non-zero value must never be swizzled and must block eviction
// of the page that carries it.
func (p Page) FosterChild() uint32 {
	return bx.U32At(p.Buf, offFosterChild)
}

func (p Page) SetFosterChild(pid uint32) {
	bx.PutU32At(p.Buf, offFosterChild, pid)
}

func (p Page) HasFosterChild() bool {
	return p.FosterChild() != 0
}

func (p Page) NumChildSlots() int {
	return int(bx.U16At(p.Buf, offNumSlots))
}

// SetNumChildSlots grows or shrinks the valid prefix of the child-slot
// directory. n must not exceed MaxChildSlots.
func (p Page) SetNumChildSlots(n int) bool {
	if n < 0 || n > MaxChildSlots {
		return false
	}
	bx.PutU16At(p.Buf, offNumSlots, uint16(n))
	return true
}

func childSlotOff(i int) int {
	return offChildSlots + i*childSlotSize
}

// ChildSlot reads the raw 32-bit value at directory index i: either a
// persistent page id or, when the swizzle flag bit is set, an encoded
// frame index. The buffer pool's swizzling policy owns the encoding.
func (p Page) ChildSlot(i int) (uint32, error) {
	if i < 0 || i >= MaxChildSlots {
		return 0, ErrChildSlotRange
	}
	return bx.U32At(p.Buf, childSlotOff(i)), nil
}

// SetChildSlot rewrites the raw 32-bit value at directory index i. Used
// both to populate a freshly-read page and by the buffer pool to swizzle
// or unswizzle a child pointer in place.
func (p Page) SetChildSlot(i int, v uint32) error {
	if i < 0 || i >= MaxChildSlots {
		return ErrChildSlotRange
	}
	bx.PutU32At(p.Buf, childSlotOff(i), v)
	return nil
}

// ChildEMLSN returns the expected LSN recorded for child slot i: the log
// sequence number the child was at when this parent last observed it,
// used to decide whether fixing the child needs single-page recovery.
func (p Page) ChildEMLSN(i int) (uint64, error) {
	if i < 0 || i >= MaxChildSlots {
		return 0, ErrChildSlotRange
	}
	return bx.U64At(p.Buf, offChildEMLSN+i*childEMLSNSize), nil
}

// SetChildEMLSN rewrites the expected LSN for child slot i. This is the
// target of the one-record update_emlsn system transaction emitted when
// a swizzled child is evicted with EMLSN maintenance enabled.
func (p Page) SetChildEMLSN(i int, lsn uint64) error {
	if i < 0 || i >= MaxChildSlots {
		return ErrChildSlotRange
	}
	bx.PutU64At(p.Buf, offChildEMLSN+i*childEMLSNSize, lsn)
	return nil
}

// Payload returns the opaque region past the header, owned by whatever
// layer interprets the page's tag.
func (p Page) Payload() []byte {
	return p.Buf[HeaderSize:]
}
