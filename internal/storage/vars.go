package storage

import "errors"

const (
	// FileMode0664 is the permission bits used when creating the backing
	// database file.
	FileMode0664 = 0o664
)

var (
	// ErrInvalidPageID is returned when a caller passes a negative page id
	// to the disk manager.
	ErrInvalidPageID = errors.New("storage: invalid page id")

	// ErrReadPastEnd names a read beyond the end of the backing file.
	// ReadPage does not return it: it zero-fills pages past the file
	// extent and accepts a short read at the end of the file.
	ErrReadPastEnd = errors.New("storage: read past end of file")

	// ErrIO wraps unexpected I/O failures from the backing file.
	ErrIO = errors.New("storage: I/O error")
)
