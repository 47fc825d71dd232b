package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/tuannm99/novadb/internal/alias/util"
)

const logPrefix = "storage: "

// DiskManager is the collaborator the buffer pool reads/writes pages
// through. It owns a single backing file and a monotonic page-id counter;
// deallocated page ids are tracked so they can be reused before growing
// the file further.
//
// Reads past the current file extent zero-fill rather than erroring, so a
// freshly allocated page id can be fetched immediately.
type DiskManager struct {
	mu        sync.RWMutex
	file      *os.File
	nextPage  int32
	freePages []int32
}

// NewDiskManager opens (creating if absent) the backing file at path.
func NewDiskManager(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0664)
	if err != nil {
		return nil, fmt.Errorf("storage: open database file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		util.CloseFileFunc(f)
		return nil, fmt.Errorf("storage: stat database file: %w", err)
	}

	dm := &DiskManager{
		file:     f,
		nextPage: int32(info.Size() / PageSize),
	}
	return dm, nil
}

// ReadPage fills buf (which must be PageSize bytes) with the contents of
// pageID. Reading a page beyond the current file extent zero-fills buf
// rather than erroring, matching the BPM's expectation that NewPage's
// freshly allocated id can be fetched immediately.
func (d *DiskManager) ReadPage(pageID int32, buf []byte) error {
	if pageID < 0 {
		return ErrInvalidPageID
	}
	if len(buf) != PageSize {
		return fmt.Errorf("storage: buffer must be %d bytes, got %d", PageSize, len(buf))
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	offset := int64(pageID) * PageSize
	info, err := d.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %v", ErrIO, err)
	}
	if offset >= info.Size() {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}

	if _, err := d.file.ReadAt(buf, offset); err != nil && err != io.EOF {
		slog.Error(logPrefix+"ReadPage failed", "pageID", pageID, "err", err)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// WritePage persists buf (PageSize bytes) at pageID's slot in the backing
// file.
func (d *DiskManager) WritePage(pageID int32, buf []byte) error {
	if pageID < 0 {
		return ErrInvalidPageID
	}
	if len(buf) != PageSize {
		return fmt.Errorf("storage: buffer must be %d bytes, got %d", PageSize, len(buf))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * PageSize
	if _, err := d.file.WriteAt(buf, offset); err != nil {
		slog.Error(logPrefix+"WritePage failed", "pageID", pageID, "err", err)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// AllocatePage returns the most recently deallocated page id when the free
// list left behind by DeallocatePage is non-empty; otherwise it returns the
// next id from the monotonic counter.
func (d *DiskManager) AllocatePage() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.freePages); n > 0 {
		id := d.freePages[n-1]
		d.freePages = d.freePages[:n-1]
		return id
	}

	id := d.nextPage
	d.nextPage++
	return id
}

// DeallocatePage releases pageID's on-disk bookkeeping slot for reuse by a
// later AllocatePage. It does not truncate or zero the underlying file
// (crash recovery and space reclamation are out of scope for this core).
func (d *DiskManager) DeallocatePage(pageID int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freePages = append(d.freePages, pageID)
}

// Close closes the backing file.
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
