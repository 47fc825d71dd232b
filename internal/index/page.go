package index

import (
	"github.com/tuannm99/novadb/internal/alias/bx"
	"github.com/tuannm99/novadb/internal/storage"
)

// Sentinel page id standing in for INVALID_PAGE_ID.
const InvalidPageID = storage.InvalidPageID

const (
	internalEntrySize = 12 // int64 key + int32 child
	leafEntrySize      = 16 // int64 key + int32 RID.PageID + uint32 RID.SlotNum

	headerRootOffset = storage.CommonHeaderSize // 4 bytes, int32

	internalEntriesOffset = storage.CommonHeaderSize
	leafNextPageOffset    = storage.CommonHeaderSize // 4 bytes, int32
	leafEntriesOffset     = leafNextPageOffset + 4
)

// --- Header page -----------------------------------------------------

// InitHeaderPage formats a freshly allocated page as the tree's header
// page, with an empty tree (root_page_id = INVALID).
func InitHeaderPage(p *storage.Page) {
	storage.SetPageKind(p, storage.KindHeader)
	SetRootPageID(p, InvalidPageID)
}

// RootPageID reads the header page's single field.
func RootPageID(p *storage.Page) int32 {
	return int32(bx.U32At(p.Data[:], headerRootOffset))
}

// SetRootPageID writes the header page's single field.
func SetRootPageID(p *storage.Page, root int32) {
	bx.PutU32At(p.Data[:], headerRootOffset, uint32(root))
}

// --- Internal page -----------------------------------------------------

// InternalPage is a view over a page formatted as a B+Tree internal node:
// an ordered array of (key, child_page_id), where entry 0's key is unused
// (pivot semantics) — all keys in the subtree rooted at child 0 are
// implicitly less than every other entry's key.
type InternalPage struct{ p *storage.Page }

// AsInternal views p as an internal page. Caller must ensure p already
// holds KindInternal content (via InitInternalPage) or is about to.
func AsInternal(p *storage.Page) InternalPage { return InternalPage{p: p} }

// InitInternalPage formats a freshly allocated page as an empty internal
// node with the given fanout.
func InitInternalPage(p *storage.Page, maxSize uint16) {
	storage.SetPageKind(p, storage.KindInternal)
	storage.SetHeaderSizeField(p, 0)
	storage.SetHeaderMaxSizeField(p, maxSize)
}

func (ip InternalPage) Size() int     { return int(storage.HeaderSizeField(ip.p)) }
func (ip InternalPage) MaxSize() int  { return int(storage.HeaderMaxSizeField(ip.p)) }
func (ip InternalPage) setSize(n int) { storage.SetHeaderSizeField(ip.p, uint16(n)) }

// IsSafeForInsert reports whether one more entry fits without overflow.
func (ip InternalPage) IsSafeForInsert() bool { return ip.Size() < ip.MaxSize() }

// IsSafeForRemove reports whether the page can lose one entry and stay
// at or above the minimum occupancy (ceil(max_size/2)), i.e. it need not
// borrow or merge.
func (ip InternalPage) IsSafeForRemove() bool { return ip.Size() > ip.minSize() }

func (ip InternalPage) minSize() int { return (ip.MaxSize() + 1) / 2 }

func (ip InternalPage) entryOffset(i int) int { return internalEntriesOffset + i*internalEntrySize }

// KeyAt returns entry i's key. Entry 0's key is unused by convention.
func (ip InternalPage) KeyAt(i int) KeyType {
	return int64(bx.U64At(ip.p.Data[:], ip.entryOffset(i)))
}

// ChildAt returns entry i's child page id.
func (ip InternalPage) ChildAt(i int) int32 {
	return int32(bx.U32At(ip.p.Data[:], ip.entryOffset(i)+8))
}

func (ip InternalPage) setEntry(i int, key KeyType, child int32) {
	off := ip.entryOffset(i)
	bx.PutU64At(ip.p.Data[:], off, uint64(key))
	bx.PutU32At(ip.p.Data[:], off+8, uint32(child))
}

// FindChildIndex runs the internal node's binary search contract: returns
// i such that key[i] <= K < key[i+1], with slot 0 treated as -inf.
func (ip InternalPage) FindChildIndex(k KeyType, cmp Comparator) int {
	size := ip.Size()
	lo, hi, res := 1, size-1, 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if cmp(ip.KeyAt(mid), k) <= 0 {
			res = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return res
}

// findInsertPos returns the index in [1, size] at which a new entry with
// key k should be inserted to keep entries 1..size-1 strictly increasing.
func (ip InternalPage) findInsertPos(k KeyType, cmp Comparator) int {
	size := ip.Size()
	lo, hi := 1, size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(ip.KeyAt(mid), k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InsertFirst installs the page's two initial entries when a brand new
// internal root is created (entry 0 carries the old root as its unused-key
// child, entry 1 carries the separator and the new sibling).
func (ip InternalPage) InsertFirst(leftChild int32, sepKey KeyType, rightChild int32) {
	ip.setEntry(0, 0, leftChild)
	ip.setEntry(1, sepKey, rightChild)
	ip.setSize(2)
}

// Insert inserts (key, child) in sorted position (by key, among the real
// keys starting at index 1). Caller must ensure there is room.
func (ip InternalPage) Insert(key KeyType, child int32, cmp Comparator) {
	pos := ip.findInsertPos(key, cmp)
	size := ip.Size()
	for i := size; i > pos; i-- {
		k := ip.KeyAt(i - 1)
		c := ip.ChildAt(i - 1)
		ip.setEntry(i, k, c)
	}
	ip.setEntry(pos, key, child)
	ip.setSize(size + 1)
}

// RemoveAt deletes the entry at index i, shifting subsequent entries down.
func (ip InternalPage) RemoveAt(i int) {
	size := ip.Size()
	for j := i; j < size-1; j++ {
		ip.setEntry(j, ip.KeyAt(j+1), ip.ChildAt(j+1))
	}
	ip.setSize(size - 1)
}

// SplitInsert inserts (key, child) into a logically full page and moves
// the upper portion (including, if applicable, the new entry) into
// sibling, which must already be InitInternalPage'd with the same
// max_size. Returns the separator key to promote to the parent (the key
// stored at sibling's slot 0, which is otherwise unused there).
func (ip InternalPage) SplitInsert(key KeyType, child int32, sibling InternalPage, cmp Comparator) KeyType {
	size := ip.Size()
	keys := make([]KeyType, 0, size+1)
	children := make([]int32, 0, size+1)
	pos := ip.findInsertPos(key, cmp)
	for i := 0; i < size; i++ {
		if i == pos {
			keys = append(keys, key)
			children = append(children, child)
		}
		keys = append(keys, ip.KeyAt(i))
		children = append(children, ip.ChildAt(i))
	}
	if pos == size {
		keys = append(keys, key)
		children = append(children, child)
	}

	total := len(keys)
	left := (total + 1) / 2

	for i := 0; i < left; i++ {
		ip.setEntry(i, keys[i], children[i])
	}
	ip.setSize(left)

	for i := left; i < total; i++ {
		sibling.setEntry(i-left, keys[i], children[i])
	}
	sibling.setSize(total - left)

	return keys[left]
}

// Entries reads out all of the page's (key, child) pairs, in order.
func (ip InternalPage) Entries() ([]KeyType, []int32) {
	size := ip.Size()
	keys := make([]KeyType, size)
	children := make([]int32, size)
	for i := 0; i < size; i++ {
		keys[i] = ip.KeyAt(i)
		children[i] = ip.ChildAt(i)
	}
	return keys, children
}

// SetEntries overwrites the page's entries wholesale (keys[0] is unused
// per pivot semantics, but stored as given for simplicity).
func (ip InternalPage) SetEntries(keys []KeyType, children []int32) {
	for i := range keys {
		ip.setEntry(i, keys[i], children[i])
	}
	ip.setSize(len(keys))
}

// --- Leaf page -----------------------------------------------------

// LeafPage is a view over a page formatted as a B+Tree leaf: an ordered
// array of (key, RID) plus a next_page_id sibling link.
type LeafPage struct{ p *storage.Page }

// AsLeaf views p as a leaf page.
func AsLeaf(p *storage.Page) LeafPage { return LeafPage{p: p} }

// InitLeafPage formats a freshly allocated page as an empty leaf.
func InitLeafPage(p *storage.Page, maxSize uint16) {
	storage.SetPageKind(p, storage.KindLeaf)
	storage.SetHeaderSizeField(p, 0)
	storage.SetHeaderMaxSizeField(p, maxSize)
	SetNextPageID(p, InvalidPageID)
}

func (lp LeafPage) Size() int    { return int(storage.HeaderSizeField(lp.p)) }
func (lp LeafPage) MaxSize() int { return int(storage.HeaderMaxSizeField(lp.p)) }

func (lp LeafPage) setSize(n int) { storage.SetHeaderSizeField(lp.p, uint16(n)) }

func (lp LeafPage) IsSafeForInsert() bool { return lp.Size() < lp.MaxSize() }
func (lp LeafPage) IsSafeForRemove() bool { return lp.Size() > lp.minSize() }
func (lp LeafPage) minSize() int          { return lp.MaxSize() / 2 }

// NextPageID returns the sibling linkage.
func NextPageID(p *storage.Page) int32 { return int32(bx.U32At(p.Data[:], leafNextPageOffset)) }

// SetNextPageID writes the sibling linkage.
func SetNextPageID(p *storage.Page, next int32) {
	bx.PutU32At(p.Data[:], leafNextPageOffset, uint32(next))
}

func (lp LeafPage) entryOffset(i int) int { return leafEntriesOffset + i*leafEntrySize }

func (lp LeafPage) KeyAt(i int) KeyType {
	return int64(bx.U64At(lp.p.Data[:], lp.entryOffset(i)))
}

func (lp LeafPage) ValueAt(i int) RID {
	off := lp.entryOffset(i)
	return RID{
		PageID:  int32(bx.U32At(lp.p.Data[:], off+8)),
		SlotNum: bx.U32At(lp.p.Data[:], off+12),
	}
}

func (lp LeafPage) setEntry(i int, key KeyType, v RID) {
	off := lp.entryOffset(i)
	bx.PutU64At(lp.p.Data[:], off, uint64(key))
	bx.PutU32At(lp.p.Data[:], off+8, uint32(v.PageID))
	bx.PutU32At(lp.p.Data[:], off+12, v.SlotNum)
}

// FindKeyIndex returns the lowest-index slot with key >= k (the leaf
// binary search contract), and whether that slot holds an exact match.
func (lp LeafPage) FindKeyIndex(k KeyType, cmp Comparator) (idx int, found bool) {
	size := lp.Size()
	lo, hi := 0, size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(lp.KeyAt(mid), k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < size && cmp(lp.KeyAt(lo), k) == 0
}

// Insert inserts (key, value) in sorted position. Caller must ensure
// there is room and the key is not already present.
func (lp LeafPage) Insert(key KeyType, v RID, cmp Comparator) {
	pos, _ := lp.FindKeyIndex(key, cmp)
	size := lp.Size()
	for i := size; i > pos; i-- {
		lp.setEntry(i, lp.KeyAt(i-1), lp.ValueAt(i-1))
	}
	lp.setEntry(pos, key, v)
	lp.setSize(size + 1)
}

// RemoveAt deletes the entry at index i, shifting subsequent entries down.
func (lp LeafPage) RemoveAt(i int) {
	size := lp.Size()
	for j := i; j < size-1; j++ {
		lp.setEntry(j, lp.KeyAt(j+1), lp.ValueAt(j+1))
	}
	lp.setSize(size - 1)
}

// Entries reads out all of the leaf's (key, value) pairs, in order.
func (lp LeafPage) Entries() ([]KeyType, []RID) {
	size := lp.Size()
	keys := make([]KeyType, size)
	values := make([]RID, size)
	for i := 0; i < size; i++ {
		keys[i] = lp.KeyAt(i)
		values[i] = lp.ValueAt(i)
	}
	return keys, values
}

// SetEntries overwrites the leaf's entries wholesale.
func (lp LeafPage) SetEntries(keys []KeyType, values []RID) {
	for i := range keys {
		lp.setEntry(i, keys[i], values[i])
	}
	lp.setSize(len(keys))
}

// SplitInsert inserts (key, value) into a logically full leaf and moves
// the upper half (including the new entry, wherever it lands) into
// sibling, which must already be InitLeafPage'd with the same max_size.
// Returns the separator key to promote (sibling's first key).
func (lp LeafPage) SplitInsert(key KeyType, v RID, sibling LeafPage, cmp Comparator) KeyType {
	size := lp.Size()
	keys := make([]KeyType, 0, size+1)
	values := make([]RID, 0, size+1)
	pos, _ := lp.FindKeyIndex(key, cmp)
	for i := 0; i < size; i++ {
		if i == pos {
			keys = append(keys, key)
			values = append(values, v)
		}
		keys = append(keys, lp.KeyAt(i))
		values = append(values, lp.ValueAt(i))
	}
	if pos == size {
		keys = append(keys, key)
		values = append(values, v)
	}

	total := len(keys)
	left := (total + 1) / 2

	for i := 0; i < left; i++ {
		lp.setEntry(i, keys[i], values[i])
	}
	lp.setSize(left)

	for i := left; i < total; i++ {
		sibling.setEntry(i-left, keys[i], values[i])
	}
	sibling.setSize(total - left)

	return keys[left]
}
