package pipeline

import (
	"fmt"

	"github.com/boozook/comic-repack/pkg/pages"
)

// State is a transcode job's position in its lifecycle.
type State int

const (
	StatePending State = iota
	StateExtracting
	StateDecoding
	StateEncoding
	StateCommitted
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExtracting:
		return "extracting"
	case StateDecoding:
		return "decoding"
	case StateEncoding:
		return "encoding"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateSkipped
}

var transitions = map[State][]State{
	StatePending:    {StateExtracting, StateFailed, StateSkipped},
	StateExtracting: {StateDecoding, StateCommitted, StateFailed, StateSkipped},
	StateDecoding:   {StateEncoding, StateFailed, StateSkipped},
	StateEncoding:   {StateCommitted, StateFailed, StateSkipped},
}

// Job tracks one page through extract, decode, encode and commit. A Job
// is owned by a single worker until its result reaches the committer;
// there is no cross-goroutine access to its state.
type Job struct {
	Page  pages.Page
	state State
}

func newJob(p pages.Page) *Job {
	return &Job{Page: p, state: StatePending}
}

// State returns the job's current lifecycle state.
func (j *Job) State() State { return j.state }

// advance moves the job to the next state, guarding against transitions
// the lifecycle does not allow.
func (j *Job) advance(to State) error {
	for _, ok := range transitions[j.state] {
		if ok == to {
			j.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s (page %d)", j.state, to, j.Page.Ordinal)
}
