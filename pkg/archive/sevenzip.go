package archive

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
)

// sevenZipReader reads cb7/7z archives via the bodgit decoder, which
// exposes per-file random access over the parsed archive index.
type sevenZipReader struct {
	rc      *sevenzip.ReadCloser
	entries []Entry
	files   map[string]*sevenzip.File
}

func openSevenZip(path string) (*sevenZipReader, error) {
	rc, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, openErr(path, err)
	}

	r := &sevenZipReader{
		rc:    rc,
		files: make(map[string]*sevenzip.File, len(rc.File)),
	}
	for i, f := range rc.File {
		name := f.Name
		if f.FileInfo().IsDir() {
			name += "/"
		}
		r.entries = append(r.entries, Entry{
			Name:  name,
			Index: i,
			Size:  int64(f.UncompressedSize),
		})
		r.files[name] = f
	}
	return r, nil
}

func (r *sevenZipReader) Entries() []Entry { return r.entries }

func (r *sevenZipReader) Open(e Entry) (io.ReadCloser, error) {
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

func (r *sevenZipReader) Close() error { return r.rc.Close() }
