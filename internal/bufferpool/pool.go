// Package bufferpool implements the buffer pool manager: a fixed-size
// array of page frames backed by a disk manager, with LRU-K eviction and
// scoped page guards.
package bufferpool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tuannm99/novadb/internal/replacer"
	"github.com/tuannm99/novadb/internal/storage"
)

const logPrefix = "bufferpool: "

var (
	// ErrNoFreeFrame is returned when every frame is pinned and no
	// victim can be evicted.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned by DeletePage when pageID is still pinned.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// frame holds one resident page plus the latch guarding its content.
type frame struct {
	page  *storage.Page
	latch sync.RWMutex
}

var _ Manager = (*Pool)(nil)

// Pool is a fixed-capacity buffer pool manager. All operations, including
// the disk reads and writes they issue, are serialized by a single pool
// latch; the per-page reader/writer latches used by page guards are
// separate from it.
//
// A free frame is used first; once the free list is exhausted, a victim
// is evicted via the replacer policy.
type Pool struct {
	mu sync.Mutex

	dm       *storage.DiskManager
	replacer *replacer.LRUK

	frames    []*frame
	freeList  []replacer.FrameID
	pageTable map[int32]replacer.FrameID
}

// NewPool creates a pool of the given capacity (frame count) backed by dm,
// evicting via an LRU-K replacer configured with k.
func NewPool(dm *storage.DiskManager, capacity int, k int) *Pool {
	if capacity <= 0 {
		capacity = 16
	}
	free := make([]replacer.FrameID, capacity)
	for i := range free {
		free[i] = replacer.FrameID(i)
	}
	return &Pool{
		dm:        dm,
		replacer:  replacer.New(capacity, k),
		frames:    make([]*frame, capacity),
		freeList:  free,
		pageTable: make(map[int32]replacer.FrameID),
	}
}

// acquireFrameLocked returns a frame to host a new page, evicting a
// victim via the replacer if the free list is empty. Caller holds p.mu.
func (p *Pool) acquireFrameLocked() (replacer.FrameID, error) {
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return id, nil
	}

	victim, ok := p.replacer.Evict()
	if !ok {
		return 0, ErrNoFreeFrame
	}

	f := p.frames[victim]
	if f.page.IsDirty() {
		if err := p.dm.WritePage(f.page.ID(), f.page.Data[:]); err != nil {
			return 0, err
		}
		f.page.ClearDirty()
	}
	delete(p.pageTable, f.page.ID())
	slog.Debug(logPrefix+"evicted victim frame", "frameID", victim, "pageID", f.page.ID())
	return victim, nil
}

// NewPage allocates a fresh page id, installs it pinned in a frame, and
// returns it.
func (p *Pool) NewPage() (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.acquireFrameLocked()
	if err != nil {
		return nil, err
	}

	pageID := p.dm.AllocatePage()
	page := storage.NewPage(pageID)
	page.Pin()

	p.frames[id] = &frame{page: page}
	p.pageTable[pageID] = id

	p.replacer.RecordAccess(id)
	p.replacer.SetEvictable(id, false)

	slog.Debug(logPrefix+"NewPage", "pageID", pageID, "frameID", id)
	return page, nil
}

// FetchPage returns pageID pinned, reading it from disk on first access.
func (p *Pool) FetchPage(pageID int32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.pageTable[pageID]; ok {
		f := p.frames[id]
		f.page.Pin()
		p.replacer.RecordAccess(id)
		p.replacer.SetEvictable(id, false)
		slog.Debug(logPrefix+"FetchPage hit", "pageID", pageID, "frameID", id)
		return f.page, nil
	}

	id, err := p.acquireFrameLocked()
	if err != nil {
		return nil, err
	}

	page := storage.NewPage(pageID)
	if err := p.dm.ReadPage(pageID, page.Data[:]); err != nil {
		p.freeList = append(p.freeList, id)
		return nil, err
	}
	page.Pin()

	p.frames[id] = &frame{page: page}
	p.pageTable[pageID] = id
	p.replacer.RecordAccess(id)
	p.replacer.SetEvictable(id, false)

	slog.Debug(logPrefix+"FetchPage miss, loaded from disk", "pageID", pageID, "frameID", id)
	return page, nil
}

// UnpinPage decrements pageID's pin count; once it reaches zero the frame
// becomes evictable.
func (p *Pool) UnpinPage(pageID int32, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[id]
	if f.page.PinCount() == 0 {
		return false
	}

	f.page.SetDirty(isDirty)
	f.page.Unpin()
	if f.page.PinCount() == 0 {
		p.replacer.SetEvictable(id, true)
	}

	slog.Debug(logPrefix+"UnpinPage", "pageID", pageID, "pinCount", f.page.PinCount(), "dirty", f.page.IsDirty())
	return true
}

// FlushPage writes pageID to disk and clears its dirty bit. It does not
// unpin the page.
func (p *Pool) FlushPage(pageID int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	f := p.frames[id]
	if err := p.dm.WritePage(pageID, f.page.Data[:]); err != nil {
		slog.Error(logPrefix+"FlushPage failed", "pageID", pageID, "err", err)
		return false
	}
	f.page.ClearDirty()
	return true
}

// FlushAllPages flushes every resident page.
func (p *Pool) FlushAllPages() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pageID, id := range p.pageTable {
		f := p.frames[id]
		if err := p.dm.WritePage(pageID, f.page.Data[:]); err != nil {
			slog.Error(logPrefix+"FlushAllPages failed", "pageID", pageID, "err", err)
			continue
		}
		f.page.ClearDirty()
	}
}

// DeletePage removes pageID from the pool (failing if it is pinned),
// flushing it first if dirty, and returns its id to the disk manager.
func (p *Pool) DeletePage(pageID int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.pageTable[pageID]
	if !ok {
		return true, nil
	}
	f := p.frames[id]
	if f.page.PinCount() != 0 {
		return false, ErrPagePinned
	}

	if f.page.IsDirty() {
		if err := p.dm.WritePage(pageID, f.page.Data[:]); err != nil {
			return false, err
		}
	}

	delete(p.pageTable, pageID)
	p.replacer.Remove(id)
	p.frames[id] = nil
	p.freeList = append(p.freeList, id)
	p.dm.DeallocatePage(pageID)

	slog.Debug(logPrefix+"DeletePage", "pageID", pageID, "frameID", id)
	return true, nil
}

// latchFor returns the page latch backing pageID, which must currently be
// resident (i.e. the caller already holds a pin on it).
func (p *Pool) latchFor(pageID int32) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.pageTable[pageID]
	return &p.frames[id].latch
}
