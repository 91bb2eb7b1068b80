// Package pipeline converts one comic archive into another: entries are
// discovered and ordered, pages are transcoded by a bounded worker pool,
// and results are committed to the destination in strict reading order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/boozook/comic-repack/pkg/archive"
	"github.com/boozook/comic-repack/pkg/pages"
	"github.com/boozook/comic-repack/pkg/transcode"
)

// Options configure one conversion run. Built once by the caller and
// never mutated afterwards.
type Options struct {
	// Container selects the destination format. Zero value is cbz.
	Container archive.Container

	// Transcode holds the target codec configuration.
	Transcode transcode.Options

	// Jobs bounds how many pages transcode concurrently. Defaults to
	// the logical core count.
	Jobs int

	// Lookahead bounds how many completed pages may wait in the reorder
	// buffer ahead of the writer's cursor. Defaults to Jobs, so memory
	// never grows with archive length.
	Lookahead int

	// Retries is the attempt budget for transient read failures while
	// extracting an entry. Decode and encode failures never retry.
	Retries int

	// SkipErrors downgrades per-page failures to skips instead of
	// aborting the whole run.
	SkipErrors bool

	// KeepNonImages passes filtered non-image entries through to the
	// destination, after all pages.
	KeepNonImages bool

	// Overwrite allows replacing an existing destination file.
	Overwrite bool

	// Title is embedded as metadata where the container supports it.
	Title string
}

func (o Options) withDefaults() Options {
	if o.Jobs < 1 {
		o.Jobs = transcode.Concurrency()
	}
	if o.Lookahead < 1 {
		o.Lookahead = o.Jobs
	}
	if o.Transcode.Codec == "" {
		o.Transcode = transcode.DefaultOptions()
	}
	return o
}

// Skip records one page that was dropped under the skip-on-error
// policy.
type Skip struct {
	Ordinal int
	Name    string
	Reason  string
}

// Summary is the final accounting of a successful run.
type Summary struct {
	Source    string
	Dest      string
	Total     int
	Committed int
	Skipped   int
	Skips     []Skip
}

// Pipeline is a single-use conversion run. Create with New, optionally
// subscribe to Progress, then call Run once.
type Pipeline struct {
	opts Options
	rep  *reporter
}

// New builds a pipeline with the given options.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts.withDefaults(), rep: newReporter()}
}

// Progress returns the run's snapshot stream. Read it from a separate
// goroutine; the channel closes when Run returns.
func (p *Pipeline) Progress() <-chan Snapshot { return p.rep.Progress() }

// Run converts the archive at src into dst. On any failure or
// cancellation no file is left at dst; the partially written temporary
// output is removed.
func (p *Pipeline) Run(ctx context.Context, src, dst string) (*Summary, error) {
	defer p.rep.close()

	reader, format, err := archive.Open(src)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	slog.Debug("opened source archive",
		"path", src, "format", format.String(), "entries", len(reader.Entries()))

	pgs, rest, err := pages.Extract(reader, reader.Entries())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	if !p.opts.KeepNonImages {
		rest = nil
	}

	writer, err := archive.NewWriter(dst, archive.WriterOptions{
		Container: p.opts.Container,
		Title:     p.opts.Title,
		Overwrite: p.opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	p.rep.begin(len(pgs))
	sum := &Summary{Source: src, Dest: dst, Total: len(pgs)}

	if err := p.schedule(ctx, reader, writer, pgs, sum); err != nil {
		writer.Abort()
		return nil, err
	}
	if err := p.passthrough(reader, writer, rest, len(pgs)); err != nil {
		writer.Abort()
		return nil, err
	}
	if err := writer.Finalize(); err != nil {
		return nil, err
	}

	slog.Info("archive converted",
		"source", src, "dest", dst,
		"pages", sum.Committed, "skipped", sum.Skipped)
	return sum, nil
}

// passthrough appends kept non-image entries after the last page,
// flattened to their base filenames. Entries from different subpaths
// can share a base name; collisions get a numeric suffix so the
// destination never holds duplicate entry names.
func (p *Pipeline) passthrough(r archive.Reader, w archive.Writer, rest []archive.Entry, next int) error {
	used := make(map[string]int)
	for i, e := range rest {
		data, err := readEntry(r, e)
		if err != nil {
			return fmt.Errorf("reading passthrough entry %s: %w", e.Name, err)
		}
		base := baseName(e.Name)
		name := base
		if n := used[base]; n > 0 {
			ext := path.Ext(base)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		used[base]++
		if err := w.Commit(next+i, name, data); err != nil {
			return err
		}
		slog.Debug("entry passed through", "entry", e.Name, "name", name)
	}
	return nil
}
