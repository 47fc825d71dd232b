// Package index implements a crabbing-latch concurrent B+Tree over
// int64 keys and RID values, backed by the buffer pool's page guards.
package index

import "errors"

// KeyType is the key type this core indexes on, fixed to a concrete int64;
// a Comparator still decouples ordering from storage so callers are not
// tied to numeric ascending order.
type KeyType = int64

// RID identifies a tuple's location: the heap page holding it and its
// slot within that page.
type RID struct {
	PageID  int32
	SlotNum uint32
}

// Comparator orders two keys: negative if a < b, zero if equal, positive
// if a > b.
type Comparator func(a, b KeyType) int

// DefaultComparator orders keys by plain integer comparison.
func DefaultComparator(a, b KeyType) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var (
	// ErrNotFound names the absent-key condition. GetValue does not return
	// it: it reports an absent key through its found result.
	ErrNotFound = errors.New("index: key not found")

	// ErrDuplicate names the duplicate-key condition. Insert does not
	// return it: it reports a duplicate key by returning false.
	ErrDuplicate = errors.New("index: duplicate key")

	// ErrCorruptPage marks an invariant violation: an operation on a page
	// whose kind does not match what the caller expected.
	ErrCorruptPage = errors.New("index: page has unexpected kind")
)
