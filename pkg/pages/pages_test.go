package pages

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/boozook/comic-repack/pkg/archive"
)

// stubReader serves in-memory entry payloads for sniffing.
type stubReader struct {
	entries []archive.Entry
	data    map[string][]byte
}

func (r *stubReader) Entries() []archive.Entry { return r.entries }

func (r *stubReader) Open(e archive.Entry) (io.ReadCloser, error) {
	data, ok := r.data[e.Name]
	if !ok {
		return nil, errors.New("no such entry")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *stubReader) Close() error { return nil }

func newStub(names ...string) *stubReader {
	r := &stubReader{data: make(map[string][]byte)}
	for i, name := range names {
		r.entries = append(r.entries, archive.Entry{Name: name, Index: i})
	}
	return r
}

func TestExtractFiltersAndOrders(t *testing.T) {
	r := newStub(
		"vol1/p10.jpg",
		"vol1/p2.png",
		"vol1/p1.jpg",
		"vol1/",
		"vol1/cover.txt",
		"vol1/Thumbs.db",
		"__MACOSX/vol1/._p1.jpg",
		".DS_Store",
	)

	pgs, rest, err := Extract(r, r.Entries())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	wantOrder := []string{"vol1/p1.jpg", "vol1/p2.png", "vol1/p10.jpg"}
	if len(pgs) != len(wantOrder) {
		t.Fatalf("expected %d pages, got %d", len(wantOrder), len(pgs))
	}
	for i, want := range wantOrder {
		if pgs[i].Entry.Name != want {
			t.Errorf("page %d: expected %s, got %s", i, want, pgs[i].Entry.Name)
		}
		if pgs[i].Ordinal != i {
			t.Errorf("page %d: expected ordinal %d, got %d", i, i, pgs[i].Ordinal)
		}
	}

	if len(rest) != 1 || rest[0].Name != "vol1/cover.txt" {
		t.Errorf("expected passthrough [vol1/cover.txt], got %v", rest)
	}
}

func TestExtractNaturalOrdering(t *testing.T) {
	r := newStub("p100.png", "p20.png", "p3.png")

	pgs, _, err := Extract(r, r.Entries())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []string{"p3.png", "p20.png", "p100.png"}
	for i := range want {
		if pgs[i].Entry.Name != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], pgs[i].Entry.Name)
		}
	}
}

func TestExtractNoImages(t *testing.T) {
	r := newStub("readme.txt", "info.xml")

	_, _, err := Extract(r, r.Entries())
	if !errors.Is(err, ErrNoImagesFound) {
		t.Fatalf("expected ErrNoImagesFound, got %v", err)
	}
}

func TestExtractSniffsExtensionless(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

	r := newStub("page001", "notes")
	r.data["page001"] = pngHeader
	r.data["notes"] = []byte("plain text, definitely not pixels")

	pgs, rest, err := Extract(r, r.Entries())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(pgs) != 1 || pgs[0].Entry.Name != "page001" {
		t.Fatalf("expected sniffed page001, got %v", pgs)
	}
	if len(rest) != 1 || rest[0].Name != "notes" {
		t.Fatalf("expected notes in passthrough, got %v", rest)
	}
}
