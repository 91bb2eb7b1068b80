// Package pages filters archive entries down to comic pages and assigns
// each one a reading-order ordinal.
package pages

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/natural"

	"github.com/boozook/comic-repack/pkg/archive"
)

// ErrNoImagesFound is returned when an archive contains no usable page
// images after filtering.
var ErrNoImagesFound = errors.New("no images found in archive")

// Page is an archive entry identified as a comic page. Ordinal is its
// zero-based position in the intended reading sequence.
type Page struct {
	Ordinal int
	Entry   archive.Entry
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".avif": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Extract filters entries to page images and orders them by natural
// (numeric-aware) name comparison, falling back to raw archive order for
// equal names. Entries with no recognizable extension are sniffed by
// signature through the reader. The second return value holds filtered
// non-image entries, in archive order, for optional passthrough.
func Extract(r archive.Reader, entries []archive.Entry) ([]Page, []archive.Entry, error) {
	var images []archive.Entry
	var rest []archive.Entry

	for _, e := range entries {
		if skipEntry(e.Name) {
			continue
		}
		if isImage(r, e) {
			images = append(images, e)
		} else {
			rest = append(rest, e)
		}
	}

	if len(images) == 0 {
		return nil, nil, fmt.Errorf("%d entries: %w", len(entries), ErrNoImagesFound)
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i].Name, images[j].Name
		if a == b {
			return images[i].Index < images[j].Index
		}
		return natural.Less(a, b)
	})

	pages := make([]Page, len(images))
	for i, e := range images {
		pages[i] = Page{Ordinal: i, Entry: e}
	}
	return pages, rest, nil
}

// skipEntry drops directories and the usual archive junk: OS metadata
// files, macOS resource forks, hidden dotfiles.
func skipEntry(name string) bool {
	if strings.HasSuffix(name, "/") {
		return true
	}
	base := path.Base(name)
	switch {
	case base == "Thumbs.db", base == ".DS_Store":
		return true
	case strings.HasPrefix(base, "."):
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == "__MACOSX" || strings.HasPrefix(part, "._") {
			return true
		}
	}
	return false
}

func isImage(r archive.Reader, e archive.Entry) bool {
	ext := strings.ToLower(path.Ext(e.Name))
	if imageExts[ext] {
		return true
	}
	if ext != "" {
		return false
	}
	return sniffImage(r, e)
}

// sniffImage peeks at an extensionless entry's leading bytes. Some tools
// pack pages without extensions; a signature check is the only way to
// tell them from metadata blobs.
func sniffImage(r archive.Reader, e archive.Entry) bool {
	rc, err := r.Open(e)
	if err != nil {
		return false
	}
	defer rc.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(head[:n]).String(), "image/")
}
