// Package archive provides streaming access to comic-book containers:
// reading cbz/cbr/cb7 sources and writing cbz or EPUB destinations.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format identifies the container format of a source archive.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatRar
	FormatSevenZip
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatRar:
		return "rar"
	case FormatSevenZip:
		return "7z"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupportedFormat is returned when a source archive's format
	// cannot be recognized by extension or signature.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrCorruptArchive is returned when a recognized archive's index
	// cannot be parsed.
	ErrCorruptArchive = errors.New("corrupt archive")
)

// Entry is one named byte stream inside a source archive. Index is the
// raw position in the archive's directory, before any filtering.
type Entry struct {
	Name  string
	Index int
	Size  int64
}

// Reader enumerates and opens entries of a source archive. Entries reads
// only the archive's directory; payload bytes are fetched per entry via
// Open. Implementations keep the underlying file handle open until Close.
type Reader interface {
	Entries() []Entry
	Open(e Entry) (io.ReadCloser, error)
	Close() error
}

var extFormats = map[string]Format{
	".zip": FormatZip,
	".cbz": FormatZip,
	".rar": FormatRar,
	".cbr": FormatRar,
	".7z":  FormatSevenZip,
	".cb7": FormatSevenZip,
}

// DetectFormat resolves a source archive's container format, first by
// extension and then by byte-signature sniffing for unknown extensions.
func DetectFormat(path string) (Format, error) {
	if f, ok := extFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("sniffing %s: %w", path, err)
	}
	switch {
	case mime.Is("application/zip"):
		return FormatZip, nil
	case mime.Is("application/x-rar-compressed") || mime.Is("application/vnd.rar"):
		return FormatRar, nil
	case mime.Is("application/x-7z-compressed"):
		return FormatSevenZip, nil
	}
	return FormatUnknown, fmt.Errorf("%s (%s): %w", path, mime.String(), ErrUnsupportedFormat)
}

// Open detects the container format of the archive at path and returns a
// Reader for it. The caller owns the Reader and must Close it.
func Open(path string) (Reader, Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, FormatUnknown, err
	}

	var r Reader
	switch format {
	case FormatZip:
		r, err = openZip(path)
	case FormatRar:
		r, err = openRar(path)
	case FormatSevenZip:
		r, err = openSevenZip(path)
	default:
		return nil, FormatUnknown, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, format, err
	}
	return r, format, nil
}

// openErr classifies an archive-open failure. File-level I/O errors
// (missing file, permissions) pass through untouched; anything else
// means the recognized archive's index did not parse.
func openErr(path string, err error) error {
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return fmt.Errorf("opening %s: %w (%v)", path, ErrCorruptArchive, err)
}
