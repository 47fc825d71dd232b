// Package storage implements fixed-size page I/O: the Page type shared by
// the buffer pool and index layers, and the DiskManager that persists pages
// to a single backing file.
package storage

import "github.com/tuannm99/novadb/internal/alias/bx"

// PageSize is the fixed size of every on-disk page, in bytes.
const PageSize = 4096

// InvalidPageID is the sentinel for "no page" (an empty tree's root, an
// unassigned frame, etc).
const InvalidPageID int32 = -1

// Page is a single fixed-size buffer plus the small amount of bookkeeping
// the buffer pool needs to track it. The byte layout inside Data is owned
// by higher layers (internal/index writes its own header/entries into it);
// storage only guarantees the buffer is PageSize bytes and zeroed on Reset.
type Page struct {
	id       int32
	Data     [PageSize]byte
	pinCount int32
	isDirty  bool
}

// NewPage allocates a zeroed page with the given id.
func NewPage(id int32) *Page {
	p := &Page{id: id}
	return p
}

// ID returns the page's identifier.
func (p *Page) ID() int32 { return p.id }

// SetID reassigns the page's identifier. The buffer pool does not call it:
// it installs a fresh Page whenever a frame takes a different page.
func (p *Page) SetID(id int32) { p.id = id }

// PinCount returns the current pin count.
func (p *Page) PinCount() int32 { return p.pinCount }

// Pin increments the pin count.
func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the pin count; it is a no-op if already zero.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// IsDirty reports whether the page has unflushed writes.
func (p *Page) IsDirty() bool { return p.isDirty }

// SetDirty logical-ORs the dirty bit, matching the BPM's UnpinPage contract.
func (p *Page) SetDirty(dirty bool) {
	if dirty {
		p.isDirty = true
	}
}

// ClearDirty resets the dirty bit after a successful flush.
func (p *Page) ClearDirty() { p.isDirty = false }

// Reset zeroes the page buffer and resets bookkeeping under a new id. The
// buffer pool does not call it: NewPage and FetchPage install a fresh Page
// in the frame instead.
func (p *Page) Reset(id int32) {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.id = id
	p.pinCount = 0
	p.isDirty = false
}

// --- Common B+Tree page header, shared by header/internal/leaf pages. ---
//
// Offset 0: page_type (1 byte)
// Offset 2: size      (2 bytes, little-endian)
// Offset 4: max_size  (2 bytes, little-endian)
// Offset 6: ... kind-specific fields follow.

const (
	headerTypeOffset = 0
	headerSizeOffset = 2
	headerMaxOffset  = 4
	// CommonHeaderSize is the number of bytes every B+Tree page kind
	// reserves before its kind-specific fields.
	CommonHeaderSize = 6
)

// PageKind identifies which of the three B+Tree page layouts a page holds.
type PageKind uint8

const (
	KindInvalid PageKind = iota
	KindHeader
	KindInternal
	KindLeaf
)

// PageKindOf reads the page_type field without interpreting the rest of
// the header.
func PageKindOf(p *Page) PageKind {
	return PageKind(p.Data[headerTypeOffset])
}

// SetPageKind writes the page_type field.
func SetPageKind(p *Page, k PageKind) {
	p.Data[headerTypeOffset] = byte(k)
}

// HeaderSizeField / HeaderMaxSizeField read/write the common size/max_size
// fields shared by internal and leaf pages (header pages do not use them).
func HeaderSizeField(p *Page) uint16     { return bx.U16At(p.Data[:], headerSizeOffset) }
func SetHeaderSizeField(p *Page, v uint16) { bx.PutU16At(p.Data[:], headerSizeOffset, v) }
func HeaderMaxSizeField(p *Page) uint16    { return bx.U16At(p.Data[:], headerMaxOffset) }
func SetHeaderMaxSizeField(p *Page, v uint16) { bx.PutU16At(p.Data[:], headerMaxOffset, v) }
