package archive

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// zipWriter writes cbz/zip destinations. Page images arrive already
// compressed by their codec, so they are stored; text passthrough
// entries are deflated.
type zipWriter struct {
	dest string
	tmp  *os.File
	zw   *zip.Writer
	next int
	done bool
}

func newZipWriter(dest string) (*zipWriter, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", wrapDiskErr(err))
	}
	return &zipWriter{
		dest: dest,
		tmp:  tmp,
		zw:   zip.NewWriter(tmp),
	}, nil
}

func (w *zipWriter) Commit(ordinal int, name string, data []byte) error {
	if ordinal != w.next {
		return fmt.Errorf("out-of-order commit: got ordinal %d, expected %d", ordinal, w.next)
	}

	method := zip.Store
	if isTextName(name) {
		method = zip.Deflate
	}
	f, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", name, wrapDiskErr(err))
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, wrapDiskErr(err))
	}
	w.next++
	return nil
}

func (w *zipWriter) Skip(ordinal int) error {
	if ordinal != w.next {
		return fmt.Errorf("out-of-order skip: got ordinal %d, expected %d", ordinal, w.next)
	}
	w.next++
	return nil
}

func (w *zipWriter) Finalize() error {
	if err := w.zw.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("closing archive: %w", wrapDiskErr(err))
	}
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("syncing archive: %w", wrapDiskErr(err))
	}
	if err := w.tmp.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("closing temp output: %w", wrapDiskErr(err))
	}
	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("promoting output: %w", wrapDiskErr(err))
	}
	w.done = true
	return nil
}

func (w *zipWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmp.Name())
}

func isTextName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".xml", ".html", ".json", ".yml", ".yaml", ".info":
		return true
	}
	return false
}
