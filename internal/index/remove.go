package index

import (
	"log/slog"

	"github.com/tuannm99/novadb/internal/bufferpool"
	"github.com/tuannm99/novadb/internal/storage"
)

// pathFrame records one node visited while descending for a remove, plus
// the index within it of the entry that led to the next frame down
// (unused for the last frame, the target leaf).
type pathFrame struct {
	guard    *bufferpool.WritePageGuard
	childIdx int
}

func releasePath(path []pathFrame) {
	for _, f := range path {
		f.guard.Drop()
	}
}

// Remove deletes key from the tree. It is a no-op if key is absent.
func (t *Tree) Remove(key KeyType) error {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	root := RootPageID(headerGuard.Page())
	if root == InvalidPageID {
		headerGuard.Drop()
		return nil
	}

	path := []pathFrame{{guard: headerGuard}}

	rootGuard, err := t.bpm.FetchPageWrite(root)
	if err != nil {
		releasePath(path)
		return err
	}
	if isSafeForRemove(rootGuard.Page()) {
		releasePath(path)
		path = path[:0]
	}
	path = append(path, pathFrame{guard: rootGuard})
	cur := rootGuard

	for storage.PageKindOf(cur.Page()) == storage.KindInternal {
		ip := AsInternal(cur.Page())
		idx := ip.FindChildIndex(key, t.cmp)
		path[len(path)-1].childIdx = idx
		childID := ip.ChildAt(idx)

		childGuard, err := t.bpm.FetchPageWrite(childID)
		if err != nil {
			releasePath(path)
			return err
		}
		if isSafeForRemove(childGuard.Page()) {
			releasePath(path)
			path = path[:0]
		}
		path = append(path, pathFrame{guard: childGuard})
		cur = childGuard
	}

	lp := AsLeaf(cur.Page())
	idx, found := lp.FindKeyIndex(key, t.cmp)
	if !found {
		releasePath(path)
		return nil
	}
	lp.RemoveAt(idx)
	cur.MarkDirty()

	parentIdx := len(path) - 2
	if parentIdx < 0 || storage.PageKindOf(path[parentIdx].guard.Page()) == storage.KindHeader {
		// The leaf is the root: it may shrink to zero, but never merges.
		if lp.Size() == 0 {
			headerPage := path[0].guard.Page()
			SetRootPageID(headerPage, InvalidPageID)
			path[0].guard.MarkDirty()
			emptyRootID := cur.PageID()
			releasePath(path) // release the leaf's pin before deallocating it
			t.bpm.DeletePage(emptyRootID)
			return nil
		}
		releasePath(path)
		return nil
	}

	if lp.Size() >= lp.minSize() {
		releasePath(path)
		return nil
	}

	t.resolveUnderflow(path)
	return nil
}

// resolveUnderflow walks from the underflowed node (path's last frame)
// upward, borrowing from a sibling if one has spare entries, else merging,
// cascading the merge upward while the parent itself underflows.
func (t *Tree) resolveUnderflow(path []pathFrame) {
	for len(path) >= 2 {
		childFrame := path[len(path)-1]
		parentFrame := path[len(path)-2]

		if storage.PageKindOf(parentFrame.guard.Page()) == storage.KindHeader {
			t.collapseRoot(parentFrame.guard, childFrame.guard)
			releasePath(path)
			return
		}

		pip := AsInternal(parentFrame.guard.Page())
		merged, err := t.borrowOrMerge(pip, parentFrame.guard, parentFrame.childIdx, childFrame.guard)
		if err != nil {
			slog.Error(logPrefix+"resolveUnderflow failed", "err", err)
			releasePath(path)
			return
		}
		if !merged {
			releasePath(path)
			return
		}

		path = path[:len(path)-1] // the merged-away child's frame is gone
		parentFrame = path[len(path)-1]
		if storage.PageKindOf(parentFrame.guard.Page()) != storage.KindInternal {
			releasePath(path)
			return
		}
		if AsInternal(parentFrame.guard.Page()).Size() >= AsInternal(parentFrame.guard.Page()).minSize() {
			releasePath(path)
			return
		}
	}
	releasePath(path)
}

// collapseRoot handles a root internal page left with a single child
// (demote the child to root) after a merge emptied it to one entry.
// Caller still owns dropping both guards; collapseRoot only deallocates
// the old root page, which it does after releasing rootGuard's own pin
// so the delete does not trip over its own latch.
func (t *Tree) collapseRoot(headerGuard *bufferpool.WritePageGuard, rootGuard *bufferpool.WritePageGuard) {
	ip := AsInternal(rootGuard.Page())
	if ip.Size() > 1 {
		return
	}
	newRoot := ip.ChildAt(0)
	SetRootPageID(headerGuard.Page(), newRoot)
	headerGuard.MarkDirty()
	oldRootID := rootGuard.PageID()
	rootGuard.Drop()
	t.bpm.DeletePage(oldRootID)
}

// borrowOrMerge resolves an underflow in child, which lives at index
// childIdx within parent. Tries the left sibling first, then the right;
// falls back to merging (left absorbs child, else child absorbs right).
// Returns merged=true if a merge happened (parent lost an entry and may
// itself now be underflowed).
func (t *Tree) borrowOrMerge(parent InternalPage, parentGuard *bufferpool.WritePageGuard, childIdx int, childGuard *bufferpool.WritePageGuard) (merged bool, err error) {
	kind := storage.PageKindOf(childGuard.Page())

	if childIdx > 0 {
		leftID := parent.ChildAt(childIdx - 1)
		leftGuard, ferr := t.bpm.FetchPageWrite(leftID)
		if ferr != nil {
			return false, ferr
		}
		if canLend(leftGuard.Page()) {
			borrowFromLeft(parent, parentGuard, childIdx, leftGuard, childGuard, kind)
			leftGuard.Drop()
			return false, nil
		}
		leftGuard.Drop()
	}

	if childIdx < parent.Size()-1 {
		rightID := parent.ChildAt(childIdx + 1)
		rightGuard, ferr := t.bpm.FetchPageWrite(rightID)
		if ferr != nil {
			return false, ferr
		}
		if canLend(rightGuard.Page()) {
			borrowFromRight(parent, parentGuard, childIdx, rightGuard, childGuard, kind)
			rightGuard.Drop()
			return false, nil
		}
		rightGuard.Drop()
	}

	if childIdx > 0 {
		leftID := parent.ChildAt(childIdx - 1)
		leftGuard, ferr := t.bpm.FetchPageWrite(leftID)
		if ferr != nil {
			return false, ferr
		}
		sep := parent.KeyAt(childIdx)
		mergeInto(leftGuard, childGuard, sep, kind)
		parent.RemoveAt(childIdx)
		parentGuard.MarkDirty()
		leftGuard.MarkDirty()
		leftGuard.Drop()
		victimID := childGuard.PageID()
		childGuard.Drop() // release the pin/latch before deallocating the page
		t.bpm.DeletePage(victimID)
		return true, nil
	}

	rightID := parent.ChildAt(childIdx + 1)
	rightGuard, ferr := t.bpm.FetchPageWrite(rightID)
	if ferr != nil {
		return false, ferr
	}
	sep := parent.KeyAt(childIdx + 1)
	mergeInto(childGuard, rightGuard, sep, kind)
	parent.RemoveAt(childIdx + 1)
	parentGuard.MarkDirty()
	childGuard.MarkDirty()
	victimID := rightGuard.PageID()
	rightGuard.Drop()
	t.bpm.DeletePage(victimID)
	childGuard.Drop() // child survived the merge but its frame is being popped by the caller
	return true, nil
}

func canLend(p *storage.Page) bool {
	if storage.PageKindOf(p) == storage.KindInternal {
		ip := AsInternal(p)
		return ip.Size() > ip.minSize()
	}
	lp := AsLeaf(p)
	return lp.Size() > lp.minSize()
}

// borrowFromLeft moves left's last entry to child's front, rewriting the
// parent separator at childIdx accordingly.
func borrowFromLeft(parent InternalPage, parentGuard *bufferpool.WritePageGuard, childIdx int, leftGuard, childGuard *bufferpool.WritePageGuard, kind storage.PageKind) {
	if kind == storage.KindLeaf {
		lk, lv := AsLeaf(leftGuard.Page()).Entries()
		ck, cv := AsLeaf(childGuard.Page()).Entries()
		n := len(lk)
		borrowedKey, borrowedVal := lk[n-1], lv[n-1]
		AsLeaf(leftGuard.Page()).SetEntries(lk[:n-1], lv[:n-1])
		AsLeaf(childGuard.Page()).SetEntries(append([]KeyType{borrowedKey}, ck...), append([]RID{borrowedVal}, cv...))
		parent.setEntry(childIdx, borrowedKey, parent.ChildAt(childIdx))
	} else {
		lk, lc := AsInternal(leftGuard.Page()).Entries()
		ck, cc := AsInternal(childGuard.Page()).Entries()
		n := len(lk)
		borrowedChild := lc[n-1]
		pulledDownKey := parent.KeyAt(childIdx)
		AsInternal(leftGuard.Page()).SetEntries(lk[:n-1], lc[:n-1])
		newKeys := append([]KeyType{0, pulledDownKey}, ck[1:]...)
		newChildren := append([]int32{borrowedChild, cc[0]}, cc[1:]...)
		AsInternal(childGuard.Page()).SetEntries(newKeys, newChildren)
		parent.setEntry(childIdx, lk[n-1], parent.ChildAt(childIdx))
	}
	parentGuard.MarkDirty()
	leftGuard.MarkDirty()
	childGuard.MarkDirty()
}

// borrowFromRight moves right's first entry to child's end, rewriting the
// parent separator at childIdx+1 accordingly.
func borrowFromRight(parent InternalPage, parentGuard *bufferpool.WritePageGuard, childIdx int, rightGuard, childGuard *bufferpool.WritePageGuard, kind storage.PageKind) {
	if kind == storage.KindLeaf {
		rk, rv := AsLeaf(rightGuard.Page()).Entries()
		ck, cv := AsLeaf(childGuard.Page()).Entries()
		borrowedKey, borrowedVal := rk[0], rv[0]
		AsLeaf(rightGuard.Page()).SetEntries(rk[1:], rv[1:])
		AsLeaf(childGuard.Page()).SetEntries(append(ck, borrowedKey), append(cv, borrowedVal))
		parent.setEntry(childIdx+1, rk[1], parent.ChildAt(childIdx+1))
	} else {
		rk, rc := AsInternal(rightGuard.Page()).Entries()
		ck, cc := AsInternal(childGuard.Page()).Entries()
		pulledDownKey := parent.KeyAt(childIdx + 1)
		borrowedChild := rc[0]
		newChildKeys := append(ck, pulledDownKey)
		newChildChildren := append(cc, borrowedChild)
		AsInternal(childGuard.Page()).SetEntries(newChildKeys, newChildChildren)
		newRightKeys := append([]KeyType{0}, rk[1:]...)
		AsInternal(rightGuard.Page()).SetEntries(newRightKeys, rc[1:])
		parent.setEntry(childIdx+1, rk[1], parent.ChildAt(childIdx+1))
	}
	parentGuard.MarkDirty()
	rightGuard.MarkDirty()
	childGuard.MarkDirty()
}

// mergeInto folds right's entries onto the end of left (left survives,
// right is deallocated by the caller). For internal pages, separator is
// the parent key between left and right, which replaces right's unused
// pivot-slot key so the folded entry sorts correctly.
func mergeInto(leftGuard, rightGuard *bufferpool.WritePageGuard, separator KeyType, kind storage.PageKind) {
	if kind == storage.KindLeaf {
		lk, lv := AsLeaf(leftGuard.Page()).Entries()
		rk, rv := AsLeaf(rightGuard.Page()).Entries()
		AsLeaf(leftGuard.Page()).SetEntries(append(lk, rk...), append(lv, rv...))
		SetNextPageID(leftGuard.Page(), NextPageID(rightGuard.Page()))
	} else {
		lk, lc := AsInternal(leftGuard.Page()).Entries()
		rk, rc := AsInternal(rightGuard.Page()).Entries()
		if len(rk) > 0 {
			rk[0] = separator
		}
		AsInternal(leftGuard.Page()).SetEntries(append(lk, rk...), append(lc, rc...))
	}
}
