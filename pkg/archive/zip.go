package archive

import (
	"archive/zip"
	"fmt"
	"io"
)

// zipReader reads cbz/zip archives through the central directory, so
// enumeration never touches payload bytes.
type zipReader struct {
	rc      *zip.ReadCloser
	entries []Entry
	files   map[string]*zip.File
}

func openZip(path string) (*zipReader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, openErr(path, err)
	}

	r := &zipReader{
		rc:    rc,
		files: make(map[string]*zip.File, len(rc.File)),
	}
	for i, f := range rc.File {
		r.entries = append(r.entries, Entry{
			Name:  f.Name,
			Index: i,
			Size:  int64(f.UncompressedSize64),
		})
		r.files[f.Name] = f
	}
	return r, nil
}

func (r *zipReader) Entries() []Entry { return r.entries }

func (r *zipReader) Open(e Entry) (io.ReadCloser, error) {
	f, ok := r.files[e.Name]
	if !ok {
		return nil, fmt.Errorf("no such entry: %s", e.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", e.Name, err)
	}
	return rc, nil
}

func (r *zipReader) Close() error { return r.rc.Close() }
