package pipeline

// result is a finished transcode job on its way to the writer.
type result struct {
	job  *Job
	name string
	data []byte
	err  error
}

// reorderBuffer holds completed-but-not-yet-committed results until
// their ordinal becomes the writer's next expected one. An arena keyed
// by ordinal with a single cursor; size is bounded by the scheduler's
// lookahead window, not by archive length.
type reorderBuffer struct {
	pending map[int]*result
	cursor  int
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[int]*result)}
}

// put stores a result for later release.
func (b *reorderBuffer) put(r *result) {
	b.pending[r.job.Page.Ordinal] = r
}

// next returns the result for the current cursor position, advancing
// the cursor, or nil when that ordinal has not arrived yet.
func (b *reorderBuffer) next() *result {
	r, ok := b.pending[b.cursor]
	if !ok {
		return nil
	}
	delete(b.pending, b.cursor)
	b.cursor++
	return r
}
