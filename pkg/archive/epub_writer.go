package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"
)

// epubWriter packs pages into a comic EPUB, one section per page in
// reading order. Page bytes are staged in a temp directory because the
// epub builder pulls image content from paths at write time.
type epubWriter struct {
	dest    string
	book    *epub.Epub
	staging string // staging dir for page files
	next    int
	done    bool
}

func newEpubWriter(dest, title string) (*epubWriter, error) {
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	}
	book, err := epub.NewEpub(title)
	if err != nil {
		return nil, fmt.Errorf("creating epub: %w", err)
	}
	book.SetLang("en")

	staging, err := os.MkdirTemp(filepath.Dir(dest), ".epub-pages-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", wrapDiskErr(err))
	}
	return &epubWriter{dest: dest, book: book, staging: staging}, nil
}

func (w *epubWriter) Commit(ordinal int, name string, data []byte) error {
	if ordinal != w.next {
		return fmt.Errorf("out-of-order commit: got ordinal %d, expected %d", ordinal, w.next)
	}
	if !isImageName(name) {
		// EPUB has no place for loose sidecar files; drop them
		w.next++
		return nil
	}

	staged := filepath.Join(w.staging, name)
	if err := os.WriteFile(staged, data, 0644); err != nil {
		return fmt.Errorf("staging page %s: %w", name, wrapDiskErr(err))
	}
	internal, err := w.book.AddImage(staged, name)
	if err != nil {
		return fmt.Errorf("adding page %s: %w", name, err)
	}

	title := fmt.Sprintf("Page %d", ordinal+1)
	body := fmt.Sprintf(
		`<div class="page"><img src="%s" alt="%s" style="width:100%%;height:auto;"/></div>`,
		internal, title,
	)
	if _, err := w.book.AddSection(body, title, "", ""); err != nil {
		return fmt.Errorf("adding section for %s: %w", name, err)
	}
	w.next++
	return nil
}

func (w *epubWriter) Skip(ordinal int) error {
	if ordinal != w.next {
		return fmt.Errorf("out-of-order skip: got ordinal %d, expected %d", ordinal, w.next)
	}
	w.next++
	return nil
}

func (w *epubWriter) Finalize() error {
	tmp := filepath.Join(w.staging, "out.epub")
	if err := w.book.Write(tmp); err != nil {
		w.Abort()
		return fmt.Errorf("writing epub: %w", wrapDiskErr(err))
	}
	if err := os.Rename(tmp, w.dest); err != nil {
		w.Abort()
		return fmt.Errorf("promoting output: %w", wrapDiskErr(err))
	}
	w.done = true
	return os.RemoveAll(w.staging)
}

func (w *epubWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return os.RemoveAll(w.staging)
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
