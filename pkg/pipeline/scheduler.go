package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/boozook/comic-repack/pkg/archive"
	"github.com/boozook/comic-repack/pkg/pages"
	"github.com/boozook/comic-repack/pkg/transcode"
)

// schedule fans pages out to Jobs workers and feeds completed results
// to the writer in ordinal order through the reorder buffer. The window
// semaphore is released only when the committer retires an ordinal, so
// at most Jobs+Lookahead pages hold decoded bytes at any time.
func (p *Pipeline) schedule(ctx context.Context, r archive.Reader, w archive.Writer, pgs []pages.Page, sum *Summary) error {
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan *Job)
	results := make(chan *result, p.opts.Jobs)
	window := make(chan struct{}, p.opts.Jobs+p.opts.Lookahead)

	g.Go(func() error {
		defer close(jobs)
		for _, pg := range pgs {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- newJob(pg):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < p.opts.Jobs; i++ {
		g.Go(func() error {
			for jb := range jobs {
				res := p.process(gctx, r, jb)
				if res.err != nil {
					if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
						return res.err
					}
					if !p.opts.SkipErrors {
						jb.advance(StateFailed)
						p.rep.observe(outcome{ordinal: jb.Page.Ordinal, state: StateFailed})
						return res.err
					}
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		buf := newReorderBuffer()
		for done := 0; done < len(pgs); {
			var res *result
			select {
			case res = <-results:
			case <-gctx.Done():
				return gctx.Err()
			}
			buf.put(res)
			for next := buf.next(); next != nil; next = buf.next() {
				if err := p.commit(w, next, sum); err != nil {
					return err
				}
				<-window
				done++
			}
		}
		return nil
	})

	return g.Wait()
}

// commit retires one in-order result: writes it, or records the skip
// and advances the writer's cursor past the gap.
func (p *Pipeline) commit(w archive.Writer, res *result, sum *Summary) error {
	jb := res.job
	ord := jb.Page.Ordinal

	if res.err != nil {
		if err := w.Skip(ord); err != nil {
			return err
		}
		jb.advance(StateSkipped)
		sum.Skipped++
		sum.Skips = append(sum.Skips, Skip{
			Ordinal: ord,
			Name:    jb.Page.Entry.Name,
			Reason:  res.err.Error(),
		})
		p.rep.observe(outcome{ordinal: ord, state: StateSkipped})
		slog.Warn("page skipped", "ordinal", ord, "entry", jb.Page.Entry.Name, "reason", res.err)
		return nil
	}

	if err := w.Commit(ord, res.name, res.data); err != nil {
		return &PageError{Ordinal: ord, Name: jb.Page.Entry.Name, Err: err}
	}
	jb.advance(StateCommitted)
	sum.Committed++
	p.rep.observe(outcome{ordinal: ord, state: StateCommitted})
	return nil
}

// process runs one page through the job lifecycle: extract with retry,
// then decode and encode, or pass the raw bytes through when the source
// codec already matches.
func (p *Pipeline) process(ctx context.Context, r archive.Reader, jb *Job) *result {
	res := &result{job: jb}
	ord, entry := jb.Page.Ordinal, jb.Page.Entry

	fail := func(err error) *result {
		res.err = &PageError{Ordinal: ord, Name: entry.Name, Err: err}
		return res
	}

	if err := jb.advance(StateExtracting); err != nil {
		res.err = err
		return res
	}
	data, err := p.extract(ctx, r, entry)
	if err != nil {
		if ctx.Err() != nil {
			res.err = ctx.Err()
			return res
		}
		return fail(err)
	}

	if transcode.Passthrough(data, p.opts.Transcode) {
		res.data = data
		res.name = p.entryName(jb.Page, data, true)
		slog.Debug("page already in target codec", "ordinal", ord, "entry", entry.Name)
		return res
	}

	if err := jb.advance(StateDecoding); err != nil {
		res.err = err
		return res
	}
	img, err := transcode.Decode(data)
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	if err := jb.advance(StateEncoding); err != nil {
		res.err = err
		return res
	}
	out, err := transcode.Encode(img, p.opts.Transcode)
	if err != nil {
		return fail(err)
	}

	res.data = out
	res.name = p.entryName(jb.Page, out, false)
	return res
}

// extract reads an entry's bytes, retrying transient read failures up
// to the configured attempt budget.
func (p *Pipeline) extract(ctx context.Context, r archive.Reader, e archive.Entry) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := readEntry(r, e)
		if err == nil {
			if len(data) == 0 {
				return nil, fmt.Errorf("entry %s is empty", e.Name)
			}
			return data, nil
		}
		lastErr = err
		slog.Debug("entry read failed", "entry", e.Name, "attempt", attempt+1, "err", err)
	}
	return nil, fmt.Errorf("reading %s after %d attempts: %w", e.Name, p.opts.Retries+1, lastErr)
}

func readEntry(r archive.Reader, e archive.Entry) ([]byte, error) {
	rc, err := r.Open(e)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// entryName names a committed page by its ordinal. Transcoded pages get
// the target codec's extension; passed-through pages keep the extension
// matching their actual bytes.
func (p *Pipeline) entryName(pg pages.Page, data []byte, copied bool) string {
	if !copied {
		return fmt.Sprintf("%d.%s", pg.Ordinal, p.opts.Transcode.Codec.Ext())
	}
	ext := strings.ToLower(path.Ext(pg.Entry.Name))
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	return fmt.Sprintf("%d%s", pg.Ordinal, ext)
}

func baseName(name string) string { return path.Base(strings.TrimSuffix(name, "/")) }
