package index

import (
	"log/slog"

	"github.com/tuannm99/novadb/internal/bufferpool"
	"github.com/tuannm99/novadb/internal/storage"
)

const logPrefix = "index: "

// Tree is a crabbing-latch concurrent B+Tree over int64 keys and RID
// values, with unique keys. All page access goes through the buffer pool's
// page guards so pins and latches are always released on exit.
//
// Descent acquires write latches top-down and releases ancestors the
// moment a child is proven safe for the insert/remove in flight (the
// standard crabbing discipline), so concurrent operations on disjoint
// subtrees never block each other past the point of divergence.
type Tree struct {
	bpm             bufferpool.Manager
	headerPageID    int32
	cmp             Comparator
	leafMaxSize     uint16
	internalMaxSize uint16
}

// NewTree allocates a fresh header page (empty tree) and returns a Tree
// bound to it.
func NewTree(bpm bufferpool.Manager, leafMaxSize, internalMaxSize uint16, cmp Comparator) (*Tree, error) {
	if cmp == nil {
		cmp = DefaultComparator
	}
	g, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	InitHeaderPage(g.Page())
	g.MarkDirty()
	headerID := g.PageID()
	g.Drop()

	return &Tree{
		bpm:             bpm,
		headerPageID:    headerID,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}, nil
}

// OpenTree reattaches to an existing tree whose header page is already
// headerPageID.
func OpenTree(bpm bufferpool.Manager, headerPageID int32, leafMaxSize, internalMaxSize uint16, cmp Comparator) *Tree {
	if cmp == nil {
		cmp = DefaultComparator
	}
	return &Tree{
		bpm:             bpm,
		headerPageID:    headerPageID,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}
}

// HeaderPageID returns the tree's header page id, needed by a catalog to
// reopen the tree later.
func (t *Tree) HeaderPageID() int32 { return t.headerPageID }

func releaseWriteGuards(guards []*bufferpool.WritePageGuard) {
	for _, g := range guards {
		g.Drop()
	}
}

// GetValue looks up key, returning its RID if present.
func (t *Tree) GetValue(key KeyType) (RID, bool, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return RID{}, false, err
	}
	root := RootPageID(headerGuard.Page())
	headerGuard.Drop()
	if root == InvalidPageID {
		return RID{}, false, nil
	}

	cur, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return RID{}, false, err
	}

	for storage.PageKindOf(cur.Page()) == storage.KindInternal {
		ip := AsInternal(cur.Page())
		idx := ip.FindChildIndex(key, t.cmp)
		childID := ip.ChildAt(idx)
		next, err := t.bpm.FetchPageRead(childID)
		cur.Drop()
		if err != nil {
			return RID{}, false, err
		}
		cur = next
	}
	defer cur.Drop()

	lp := AsLeaf(cur.Page())
	idx, found := lp.FindKeyIndex(key, t.cmp)
	if !found {
		return RID{}, false, nil
	}
	return lp.ValueAt(idx), true, nil
}

// Insert adds (key, value) to the tree. Returns false without modifying
// the tree if key is already present.
func (t *Tree) Insert(key KeyType, value RID) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}

	root := RootPageID(headerGuard.Page())
	if root == InvalidPageID {
		leafGuard, err := t.bpm.NewPageWrite()
		if err != nil {
			headerGuard.Drop()
			return false, err
		}
		InitLeafPage(leafGuard.Page(), t.leafMaxSize)
		AsLeaf(leafGuard.Page()).Insert(key, value, t.cmp)
		leafGuard.MarkDirty()

		SetRootPageID(headerGuard.Page(), leafGuard.PageID())
		headerGuard.MarkDirty()

		slog.Debug(logPrefix+"Insert created first root leaf", "key", key, "root", leafGuard.PageID())
		leafGuard.Drop()
		headerGuard.Drop()
		return true, nil
	}

	ancestors := []*bufferpool.WritePageGuard{headerGuard}

	rootGuard, err := t.bpm.FetchPageWrite(root)
	if err != nil {
		releaseWriteGuards(ancestors)
		return false, err
	}
	if isSafeForInsert(rootGuard.Page()) {
		releaseWriteGuards(ancestors)
		ancestors = ancestors[:0]
	}
	ancestors = append(ancestors, rootGuard)
	cur := rootGuard

	for storage.PageKindOf(cur.Page()) == storage.KindInternal {
		ip := AsInternal(cur.Page())
		idx := ip.FindChildIndex(key, t.cmp)
		childID := ip.ChildAt(idx)

		childGuard, err := t.bpm.FetchPageWrite(childID)
		if err != nil {
			releaseWriteGuards(ancestors)
			return false, err
		}
		if isSafeForInsert(childGuard.Page()) {
			releaseWriteGuards(ancestors)
			ancestors = ancestors[:0]
		}
		ancestors = append(ancestors, childGuard)
		cur = childGuard
	}

	lp := AsLeaf(cur.Page())
	if _, found := lp.FindKeyIndex(key, t.cmp); found {
		releaseWriteGuards(ancestors)
		return false, nil
	}

	if lp.IsSafeForInsert() {
		lp.Insert(key, value, t.cmp)
		cur.MarkDirty()
		releaseWriteGuards(ancestors)
		return true, nil
	}

	siblingGuard, err := t.bpm.NewPageWrite()
	if err != nil {
		releaseWriteGuards(ancestors)
		return false, err
	}
	InitLeafPage(siblingGuard.Page(), t.leafMaxSize)
	sibling := AsLeaf(siblingGuard.Page())
	separator := lp.SplitInsert(key, value, sibling, t.cmp)

	SetNextPageID(siblingGuard.Page(), NextPageID(cur.Page()))
	SetNextPageID(cur.Page(), siblingGuard.PageID())
	cur.MarkDirty()
	siblingGuard.MarkDirty()

	newChildID := siblingGuard.PageID()
	siblingGuard.Drop()

	ancestors = ancestors[:len(ancestors)-1] // leaf itself handled, keep it only in `cur`
	t.propagateInsert(ancestors, separator, newChildID)
	cur.Drop()

	slog.Debug(logPrefix+"Insert split leaf", "key", key, "separator", separator, "newChild", newChildID)
	return true, nil
}

// propagateInsert inserts (key, child) into the closest still-held
// ancestor, splitting (and continuing upward) as needed, installing a new
// root if propagation reaches the header page.
func (t *Tree) propagateInsert(ancestors []*bufferpool.WritePageGuard, key KeyType, child int32) {
	for i := len(ancestors) - 1; i >= 0; i-- {
		g := ancestors[i]

		if storage.PageKindOf(g.Page()) == storage.KindHeader {
			newRootGuard, err := t.bpm.NewPageWrite()
			if err != nil {
				slog.Error(logPrefix+"propagateInsert: failed to allocate new root", "err", err)
				releaseWriteGuards(ancestors[:i])
				return
			}
			InitInternalPage(newRootGuard.Page(), t.internalMaxSize)
			oldRoot := RootPageID(g.Page())
			AsInternal(newRootGuard.Page()).InsertFirst(oldRoot, key, child)
			newRootGuard.MarkDirty()

			SetRootPageID(g.Page(), newRootGuard.PageID())
			g.MarkDirty()
			newRootGuard.Drop()
			g.Drop()
			return
		}

		ip := AsInternal(g.Page())
		if ip.Size() < ip.MaxSize() {
			ip.Insert(key, child, t.cmp)
			g.MarkDirty()
			g.Drop()
			releaseWriteGuards(ancestors[:i])
			return
		}

		siblingGuard, err := t.bpm.NewPageWrite()
		if err != nil {
			slog.Error(logPrefix+"propagateInsert: failed to allocate sibling", "err", err)
			releaseWriteGuards(ancestors[:i+1])
			return
		}
		InitInternalPage(siblingGuard.Page(), t.internalMaxSize)
		sibling := AsInternal(siblingGuard.Page())
		newSeparator := ip.SplitInsert(key, child, sibling, t.cmp)
		g.MarkDirty()
		siblingGuard.MarkDirty()

		key = newSeparator
		child = siblingGuard.PageID()
		siblingGuard.Drop()
		g.Drop()
	}
}

func isSafeForInsert(p *storage.Page) bool {
	switch storage.PageKindOf(p) {
	case storage.KindInternal:
		return AsInternal(p).IsSafeForInsert()
	case storage.KindLeaf:
		return AsLeaf(p).IsSafeForInsert()
	default:
		return true
	}
}

func isSafeForRemove(p *storage.Page) bool {
	switch storage.PageKindOf(p) {
	case storage.KindInternal:
		return AsInternal(p).IsSafeForRemove()
	case storage.KindLeaf:
		return AsLeaf(p).IsSafeForRemove()
	default:
		return true
	}
}
