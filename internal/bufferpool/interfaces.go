package bufferpool

import "github.com/tuannm99/novadb/internal/storage"

// Manager is the buffer pool manager contract consumed by the index
// layer: fixed-size frame array, page table, pin/unpin
// discipline, and scoped page guards.
type Manager interface {
	// NewPage allocates a fresh page id and returns it pinned. Returns
	// ErrNoFreeFrame if every frame is currently pinned.
	NewPage() (*storage.Page, error)

	// FetchPage returns pageID's page, pinned, loading it from disk if
	// it is not already resident.
	FetchPage(pageID int32) (*storage.Page, error)

	// UnpinPage decrements pageID's pin count and logical-ORs its dirty
	// bit. Returns false if pageID is not resident or already unpinned.
	UnpinPage(pageID int32, isDirty bool) bool

	// FlushPage writes pageID to disk and clears its dirty bit. Returns
	// false if pageID is not resident. Does not unpin.
	FlushPage(pageID int32) bool

	// FlushAllPages flushes every resident page.
	FlushAllPages()

	// DeletePage removes pageID from the pool and deallocates its id.
	// Returns false if pageID is currently pinned.
	DeletePage(pageID int32) (bool, error)

	// NewPageGuarded is NewPage wrapped in a BasicPageGuard.
	NewPageGuarded() (*BasicPageGuard, error)
	// NewPageWrite is NewPage wrapped in a WritePageGuard (writer latch held).
	NewPageWrite() (*WritePageGuard, error)
	// FetchPageBasic is FetchPage wrapped in a BasicPageGuard.
	FetchPageBasic(pageID int32) (*BasicPageGuard, error)
	// FetchPageRead is FetchPage wrapped in a ReadPageGuard (reader latch held).
	FetchPageRead(pageID int32) (*ReadPageGuard, error)
	// FetchPageWrite is FetchPage wrapped in a WritePageGuard (writer latch held).
	FetchPageWrite(pageID int32) (*WritePageGuard, error)
}
