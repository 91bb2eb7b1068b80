package pipeline

// Snapshot is a point-in-time view of a run's progress, published for
// external renderers. Purely observational: an absent or slow consumer
// never affects the pipeline.
type Snapshot struct {
	Completed int
	Skipped   int
	Failed    int
	Total     int
}

// Done reports whether every page has reached a terminal state.
func (s Snapshot) Done() bool {
	return s.Total > 0 && s.Completed+s.Skipped+s.Failed >= s.Total
}

type outcome struct {
	ordinal int
	state   State
}

type repEvent struct {
	begin bool
	total int
	out   outcome
}

// reporter aggregates per-job outcomes into snapshots. The committer
// feeds this single aggregator over a channel; snapshots go out
// latest-wins, so a stalled reader sees coarser updates but never
// blocks the run.
type reporter struct {
	events    chan repEvent
	snapshots chan Snapshot
}

func newReporter() *reporter {
	r := &reporter{
		events:    make(chan repEvent, 64),
		snapshots: make(chan Snapshot, 1),
	}
	go r.loop()
	return r
}

// Progress returns the snapshot stream. The channel is closed when the
// run ends.
func (r *reporter) Progress() <-chan Snapshot { return r.snapshots }

// begin announces the page total once extraction has counted it.
func (r *reporter) begin(total int) { r.events <- repEvent{begin: true, total: total} }

func (r *reporter) observe(o outcome) { r.events <- repEvent{out: o} }

func (r *reporter) close() { close(r.events) }

func (r *reporter) loop() {
	var s Snapshot
	for e := range r.events {
		if e.begin {
			s = Snapshot{Total: e.total}
		} else {
			switch e.out.state {
			case StateCommitted:
				s.Completed++
			case StateSkipped:
				s.Skipped++
			case StateFailed:
				s.Failed++
			}
		}
		r.publish(s)
	}
	close(r.snapshots)
}

// publish replaces any unread snapshot with the latest one.
func (r *reporter) publish(s Snapshot) {
	for {
		select {
		case r.snapshots <- s:
			return
		default:
			select {
			case <-r.snapshots:
			default:
			}
		}
	}
}
