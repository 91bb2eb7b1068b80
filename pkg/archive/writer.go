package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Container identifies the destination container format.
type Container int

const (
	ContainerZip Container = iota
	ContainerEpub
)

func (c Container) String() string {
	if c == ContainerEpub {
		return "epub"
	}
	return "cbz"
}

// Ext returns the file extension for the container, without the dot.
func (c Container) Ext() string { return c.String() }

var (
	// ErrDiskFull is returned when the destination filesystem runs out
	// of space while writing.
	ErrDiskFull = errors.New("disk full")

	// ErrExists is returned when the destination path already exists and
	// overwriting was not requested.
	ErrExists = errors.New("destination already exists")
)

// Writer commits entries to a destination archive in strict ordinal
// order. Output goes to a temporary file that is promoted to the final
// path only by Finalize; Abort discards it. A crash or cancellation
// therefore never leaves a partial file at the destination.
type Writer interface {
	// Commit appends the entry for ordinal. The ordinal must equal the
	// writer's next-expected cursor.
	Commit(ordinal int, name string, data []byte) error

	// Skip advances the cursor past an ordinal that will never be
	// committed, so later ordinals can proceed.
	Skip(ordinal int) error

	// Finalize flushes the container index and atomically renames the
	// temporary file to the destination path.
	Finalize() error

	// Abort discards the temporary output. Safe to call after Finalize,
	// where it is a no-op.
	Abort() error
}

// WriterOptions configure destination archive creation.
type WriterOptions struct {
	Container Container
	// Title is embedded as document metadata where the container
	// supports it (EPUB only).
	Title string
	// Overwrite allows replacing an existing destination file.
	Overwrite bool
}

// NewWriter creates a Writer for the destination path. The overwrite
// check happens up front, before any pages are transcoded.
func NewWriter(path string, opts WriterOptions) (Writer, error) {
	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("%s: %w", path, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", wrapDiskErr(err))
	}

	switch opts.Container {
	case ContainerEpub:
		return newEpubWriter(path, opts.Title)
	default:
		return newZipWriter(path)
	}
}

// wrapDiskErr tags ENOSPC failures so callers can distinguish a full
// disk from other I/O errors.
func wrapDiskErr(err error) error {
	if err != nil && errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrDiskFull, err)
	}
	return err
}
