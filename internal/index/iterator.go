package index

import (
	"github.com/tuannm99/novadb/internal/bufferpool"
	"github.com/tuannm99/novadb/internal/storage"
)

// Iterator walks a leaf's key range in ascending order, hopping across
// the leaf-linked list via next_page_id once the current leaf is
// exhausted. It holds no page guard between calls: Key/Value each take
// a short read guard on the current leaf, so a long-lived iterator never
// starves a concurrent writer crabbing through the same leaves.
type Iterator struct {
	bpm    bufferpool.Manager
	leafID int32
	slot   int
	atEnd  bool
}

// Begin returns an iterator positioned at the first entry of the
// leftmost leaf.
func (t *Tree) Begin() (*Iterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	root := RootPageID(headerGuard.Page())
	headerGuard.Drop()
	if root == InvalidPageID {
		return &Iterator{bpm: t.bpm, atEnd: true}, nil
	}

	cur, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	for storage.PageKindOf(cur.Page()) == storage.KindInternal {
		ip := AsInternal(cur.Page())
		childID := ip.ChildAt(0)
		next, err := t.bpm.FetchPageRead(childID)
		cur.Drop()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	leafID := cur.PageID()
	size := AsLeaf(cur.Page()).Size()
	cur.Drop()

	return &Iterator{bpm: t.bpm, leafID: leafID, slot: 0, atEnd: size == 0}, nil
}

// Seek returns an iterator positioned at the first entry whose key is
// greater than or equal to key.
func (t *Tree) Seek(key KeyType) (*Iterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}
	root := RootPageID(headerGuard.Page())
	headerGuard.Drop()
	if root == InvalidPageID {
		return &Iterator{bpm: t.bpm, atEnd: true}, nil
	}

	cur, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	for storage.PageKindOf(cur.Page()) == storage.KindInternal {
		ip := AsInternal(cur.Page())
		idx := ip.FindChildIndex(key, t.cmp)
		childID := ip.ChildAt(idx)
		next, err := t.bpm.FetchPageRead(childID)
		cur.Drop()
		if err != nil {
			return nil, err
		}
		cur = next
	}

	lp := AsLeaf(cur.Page())
	idx, _ := lp.FindKeyIndex(key, t.cmp)
	leafID := cur.PageID()
	size := lp.Size()
	next := NextPageID(cur.Page())
	cur.Drop()

	it := &Iterator{bpm: t.bpm, leafID: leafID, slot: idx}
	if idx >= size {
		if err := it.advancePastLeaf(next); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// IsEnd reports whether the iterator has exhausted the key range.
func (it *Iterator) IsEnd() bool { return it.atEnd }

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() (KeyType, error) {
	g, err := it.bpm.FetchPageRead(it.leafID)
	if err != nil {
		return 0, err
	}
	defer g.Drop()
	return AsLeaf(g.Page()).KeyAt(it.slot), nil
}

// Value returns the RID at the iterator's current position.
func (it *Iterator) Value() (RID, error) {
	g, err := it.bpm.FetchPageRead(it.leafID)
	if err != nil {
		return RID{}, err
	}
	defer g.Drop()
	return AsLeaf(g.Page()).ValueAt(it.slot), nil
}

// Next advances the iterator by one entry, hopping to the next leaf via
// next_page_id once the current leaf is exhausted.
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	g, err := it.bpm.FetchPageRead(it.leafID)
	if err != nil {
		return err
	}
	next := NextPageID(g.Page())
	size := AsLeaf(g.Page()).Size()
	g.Drop()

	it.slot++
	if it.slot < size {
		return nil
	}
	return it.advancePastLeaf(next)
}

// advancePastLeaf moves the iterator to slot 0 of nextLeafID, skipping
// over any leaves emptied by a concurrent remove, until a non-empty leaf
// is found or the chain runs out.
func (it *Iterator) advancePastLeaf(nextLeafID int32) error {
	for nextLeafID != InvalidPageID {
		g, err := it.bpm.FetchPageRead(nextLeafID)
		if err != nil {
			return err
		}
		size := AsLeaf(g.Page()).Size()
		next := NextPageID(g.Page())
		g.Drop()

		if size > 0 {
			it.leafID = nextLeafID
			it.slot = 0
			return nil
		}
		nextLeafID = next
	}
	it.atEnd = true
	return nil
}
