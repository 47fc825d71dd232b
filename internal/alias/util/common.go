package util

import (
	"log/slog"
	"os"
)

// CloseFileFunc closes f, logging rather than swallowing a close error.
// Intended for best-effort cleanup paths (e.g. an error already being
// returned for another reason) where the caller cannot also surface a
// close failure.
func CloseFileFunc(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Error("util: failed to close file", "err", err)
	}
}
