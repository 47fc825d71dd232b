package bufferpool

import "github.com/tuannm99/novadb/internal/storage"

// BasicPageGuard owns a pin on a page; Drop unpins it with the guard's
// dirty flag. Guards are movable but not copyable: copying one and
// dropping both would double-unpin. Callers should pass guards by value
// only when transferring ownership (e.g. returning from a constructor),
// never retain two live copies of the same guard.
type BasicPageGuard struct {
	bp      *Pool
	page    *storage.Page
	dirty   bool
	dropped bool
}

func newBasicGuard(bp *Pool, page *storage.Page) *BasicPageGuard {
	return &BasicPageGuard{bp: bp, page: page}
}

// Page returns the guarded page.
func (g *BasicPageGuard) Page() *storage.Page { return g.page }

// PageID returns the guarded page's id.
func (g *BasicPageGuard) PageID() int32 { return g.page.ID() }

// MarkDirty records that the guard's pin should flush the page as dirty
// when dropped.
func (g *BasicPageGuard) MarkDirty() { g.dirty = true }

// Drop releases the guard's pin. Safe to call more than once; only the
// first call has effect. Must be called on every exit path (the
// zero-value Go defer idiom is the intended usage).
func (g *BasicPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.bp.UnpinPage(g.page.ID(), g.dirty)
}

// ReadPageGuard is a BasicPageGuard that additionally holds the page's
// reader latch for its lifetime.
type ReadPageGuard struct {
	basic *BasicPageGuard
	latch interface{ RUnlock() }
}

// Page returns the guarded page.
func (g *ReadPageGuard) Page() *storage.Page { return g.basic.Page() }

// PageID returns the guarded page's id.
func (g *ReadPageGuard) PageID() int32 { return g.basic.PageID() }

// Drop releases the reader latch, then the pin.
func (g *ReadPageGuard) Drop() {
	if g.latch != nil {
		g.latch.RUnlock()
		g.latch = nil
	}
	g.basic.Drop()
}

// WritePageGuard is a BasicPageGuard that additionally holds the page's
// writer latch for its lifetime.
type WritePageGuard struct {
	basic *BasicPageGuard
	latch interface{ Unlock() }
}

// Page returns the guarded page.
func (g *WritePageGuard) Page() *storage.Page { return g.basic.Page() }

// PageID returns the guarded page's id.
func (g *WritePageGuard) PageID() int32 { return g.basic.PageID() }

// MarkDirty records that the page was modified; Drop will flag it dirty.
func (g *WritePageGuard) MarkDirty() { g.basic.MarkDirty() }

// Drop releases the writer latch, then the pin.
func (g *WritePageGuard) Drop() {
	if g.latch != nil {
		g.latch.Unlock()
		g.latch = nil
	}
	g.basic.Drop()
}

// NewPageGuarded is NewPage wrapped in a BasicPageGuard.
func (p *Pool) NewPageGuarded() (*BasicPageGuard, error) {
	page, err := p.NewPage()
	if err != nil {
		return nil, err
	}
	return newBasicGuard(p, page), nil
}

// NewPageWrite is NewPage wrapped in a WritePageGuard.
func (p *Pool) NewPageWrite() (*WritePageGuard, error) {
	page, err := p.NewPage()
	if err != nil {
		return nil, err
	}
	latch := p.latchFor(page.ID())
	latch.Lock()
	return &WritePageGuard{basic: newBasicGuard(p, page), latch: latch}, nil
}

// FetchPageBasic is FetchPage wrapped in a BasicPageGuard.
func (p *Pool) FetchPageBasic(pageID int32) (*BasicPageGuard, error) {
	page, err := p.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return newBasicGuard(p, page), nil
}

// FetchPageRead is FetchPage wrapped in a ReadPageGuard: the page's
// reader latch is held for the guard's lifetime.
func (p *Pool) FetchPageRead(pageID int32) (*ReadPageGuard, error) {
	page, err := p.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	latch := p.latchFor(pageID)
	latch.RLock()
	return &ReadPageGuard{basic: newBasicGuard(p, page), latch: latch}, nil
}

// FetchPageWrite is FetchPage wrapped in a WritePageGuard: the page's
// writer latch is held for the guard's lifetime.
func (p *Pool) FetchPageWrite(pageID int32) (*WritePageGuard, error) {
	page, err := p.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	latch := p.latchFor(pageID)
	latch.Lock()
	return &WritePageGuard{basic: newBasicGuard(p, page), latch: latch}, nil
}
