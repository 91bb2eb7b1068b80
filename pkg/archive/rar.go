package archive

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// rarReader reads cbr/rar archives. Rar is a sequential format: the
// entry list is gathered by one header-only pass at open time, and each
// Open re-scans from the start of the archive to the requested entry.
// Concurrent Open calls each hold their own decoder, so workers never
// share read state.
type rarReader struct {
	path    string
	entries []Entry
}

func openRar(path string) (*rarReader, error) {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, openErr(path, err)
	}
	defer rc.Close()

	r := &rarReader{path: path}
	for i := 0; ; i++ {
		hdr, err := rc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s headers: %w (%v)", path, ErrCorruptArchive, err)
		}
		name := hdr.Name
		if hdr.IsDir {
			name += "/"
		}
		r.entries = append(r.entries, Entry{Name: name, Index: i, Size: hdr.UnPackedSize})
	}
	return r, nil
}

func (r *rarReader) Entries() []Entry { return r.entries }

func (r *rarReader) Open(e Entry) (io.ReadCloser, error) {
	rc, err := rardecode.OpenReader(r.path)
	if err != nil {
		return nil, fmt.Errorf("reopening %s: %w", r.path, err)
	}
	for {
		hdr, err := rc.Next()
		if err == io.EOF {
			rc.Close()
			return nil, fmt.Errorf("no such entry: %s", e.Name)
		}
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("seeking to %s: %w", e.Name, err)
		}
		if hdr.Name == e.Name && !hdr.IsDir {
			return rc, nil
		}
	}
}

func (r *rarReader) Close() error { return nil }
