package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boozook/comic-repack/pkg/archive"
	"github.com/boozook/comic-repack/pkg/pages"
	"github.com/boozook/comic-repack/pkg/transcode"
)

type testEntry struct {
	name string
	data []byte
}

func buildCBZ(t *testing.T, path string, entries []testEntry) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegOptions(k int) Options {
	return Options{
		Transcode: transcode.Options{Codec: transcode.CodecJpeg, Quality: 90},
		Jobs:      k,
	}
}

func readZipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestRunPreservesReadingOrder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")

	// archive order is deliberately shuffled; natural name order wins
	buildCBZ(t, src, []testEntry{
		{"p10.png", pngBytes(t, 10, 12)},
		{"p2.png", pngBytes(t, 4, 6)},
		{"p1.png", pngBytes(t, 8, 8)},
		{"cover.txt", []byte("not a page")},
	})

	p := New(jpegOptions(4))
	sum, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 3, sum.Committed)
	assert.Equal(t, 0, sum.Skipped)
	assert.Equal(t, []string{"0.jpg", "1.jpg", "2.jpg"}, readZipNames(t, dst))

	// ordinal 0 must be p1 (8x8), 1 p2 (4x6), 2 p10 (10x12)
	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()
	wantDims := [][2]int{{8, 8}, {4, 6}, {10, 12}}
	for i, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		img, _, err := image.Decode(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, wantDims[i][0], img.Bounds().Dx(), "entry %s width", f.Name)
		assert.Equal(t, wantDims[i][1], img.Bounds().Dy(), "entry %s height", f.Name)
	}
}

func TestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 6, 6)},
		{"p2.png", pngBytes(t, 6, 6)},
	})

	outA := filepath.Join(dir, "a.cbz")
	outB := filepath.Join(dir, "b.cbz")
	for _, dst := range []string{outA, outB} {
		_, err := New(jpegOptions(2)).Run(context.Background(), src, dst)
		require.NoError(t, err)
	}

	a, err := os.ReadFile(outA)
	require.NoError(t, err)
	b, err := os.ReadFile(outB)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "repeat runs should produce byte-identical archives")
}

func TestRunSameResultForAnyConcurrency(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	var entries []testEntry
	for i := 1; i <= 9; i++ {
		entries = append(entries, testEntry{
			name: "p" + string(rune('0'+i)) + ".png",
			data: pngBytes(t, 3+i, 5),
		})
	}
	buildCBZ(t, src, entries)

	serial := filepath.Join(dir, "k1.cbz")
	parallel := filepath.Join(dir, "k8.cbz")
	_, err := New(jpegOptions(1)).Run(context.Background(), src, serial)
	require.NoError(t, err)
	_, err = New(jpegOptions(8)).Run(context.Background(), src, parallel)
	require.NoError(t, err)

	a, _ := os.ReadFile(serial)
	b, _ := os.ReadFile(parallel)
	assert.True(t, bytes.Equal(a, b), "output must not depend on worker count")
}

func TestRunSkipOnError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"p2.png", []byte("truncated garbage that will not decode")},
		{"p3.png", pngBytes(t, 4, 4)},
	})

	opts := jpegOptions(2)
	opts.SkipErrors = true
	sum, err := New(opts).Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Committed)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, sum.Skips, 1)
	assert.Equal(t, 1, sum.Skips[0].Ordinal)
	assert.Equal(t, "p2.png", sum.Skips[0].Name)

	// skipped ordinal leaves a gap, order of survivors intact
	assert.Equal(t, []string{"0.jpg", "2.jpg"}, readZipNames(t, dst))
}

func TestRunAbortsWithoutSkipPolicy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"p2.png", []byte("truncated garbage that will not decode")},
	})

	_, err := New(jpegOptions(2)).Run(context.Background(), src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, transcode.ErrDecode)

	var perr *PageError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "p2.png", perr.Name)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "no destination file may remain after abort")
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"p2.png", pngBytes(t, 4, 4)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(jpegOptions(2)).Run(ctx, src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "cancellation must not leave a destination file")
	leftovers, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, leftovers, 1, "only the source archive should remain")
}

func TestRunKeepsNonImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"meta/ComicInfo.xml", []byte("<ComicInfo/>")},
	})

	opts := jpegOptions(1)
	opts.KeepNonImages = true
	sum, err := New(opts).Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Committed)

	assert.Equal(t, []string{"0.jpg", "ComicInfo.xml"}, readZipNames(t, dst))
}

func TestRunKeepDedupesCollidingNames(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"a/notes.txt", []byte("from a")},
		{"b/notes.txt", []byte("from b")},
	})

	opts := jpegOptions(1)
	opts.KeepNonImages = true
	_, err := New(opts).Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, []string{"0.jpg", "notes.txt", "notes-1.txt"}, readZipNames(t, dst))
}

func TestRunPassthroughSameCodec(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	original := pngBytes(t, 5, 5)
	buildCBZ(t, src, []testEntry{{"p1.png", original}})

	opts := Options{Transcode: transcode.Options{Codec: transcode.CodecPng}, Jobs: 1}
	sum, err := New(opts).Run(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Committed)

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "0.png", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, original, got, "same-codec page must be copied bit-for-bit")
}

func TestRunNoImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	buildCBZ(t, src, []testEntry{{"readme.txt", []byte("words")}})

	_, err := New(jpegOptions(1)).Run(context.Background(), src, filepath.Join(dir, "out.cbz"))
	assert.ErrorIs(t, err, pages.ErrNoImagesFound)
}

func TestRunRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{{"p1.png", pngBytes(t, 4, 4)}})
	require.NoError(t, os.WriteFile(dst, []byte("already here"), 0644))

	_, err := New(jpegOptions(1)).Run(context.Background(), src, dst)
	assert.ErrorIs(t, err, archive.ErrExists)
}

func TestProgressSnapshots(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "issue01.cbz")
	dst := filepath.Join(dir, "out.cbz")
	buildCBZ(t, src, []testEntry{
		{"p1.png", pngBytes(t, 4, 4)},
		{"p2.png", pngBytes(t, 4, 4)},
		{"p3.png", pngBytes(t, 4, 4)},
	})

	p := New(jpegOptions(2))

	var last Snapshot
	seen := make(chan struct{})
	go func() {
		defer close(seen)
		for s := range p.Progress() {
			last = s
		}
	}()

	_, err := p.Run(context.Background(), src, dst)
	require.NoError(t, err)
	<-seen

	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 3, last.Completed)
	assert.True(t, last.Done())
}

func TestReorderBuffer(t *testing.T) {
	buf := newReorderBuffer()
	mk := func(ord int) *result {
		return &result{job: newJob(pages.Page{Ordinal: ord})}
	}

	buf.put(mk(2))
	if buf.next() != nil {
		t.Fatal("ordinal 0 not arrived, nothing should release")
	}
	buf.put(mk(0))
	r := buf.next()
	if r == nil || r.job.Page.Ordinal != 0 {
		t.Fatal("expected ordinal 0 first")
	}
	if buf.next() != nil {
		t.Fatal("ordinal 1 still missing")
	}
	buf.put(mk(1))
	for want := 1; want <= 2; want++ {
		r := buf.next()
		if r == nil || r.job.Page.Ordinal != want {
			t.Fatalf("expected ordinal %d", want)
		}
	}
}
