// Package pipeline drives spec.md §4.2's per-base install state machine
// over the worklist a resolver.Resolve call produces: Pending -> Fetched
// -> Reviewed -> DepsChecked -> Built -> Signed -> Published -> Queued ->
// Installed, sink Failed. Cross-base concerns (batching, failure
// isolation, the install queue) live at the Pipeline level; each
// transition method on Pipeline advances one base by exactly one state.
package pipeline

import (
	"time"

	"github.com/cairn-pm/cairn/internal/fetcher"
	"github.com/cairn-pm/cairn/internal/pkgmodel"
)

// State is one node in the per-base state machine.
type State int

const (
	StatePending State = iota
	StateFetched
	StateReviewed
	StateDepsChecked
	StateBuilt
	StateSigned
	StatePublished
	StateQueued
	StateInstalled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetched:
		return "fetched"
	case StateReviewed:
		return "reviewed"
	case StateDepsChecked:
		return "deps-checked"
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StatePublished:
		return "published"
	case StateQueued:
		return "queued"
	case StateInstalled:
		return "installed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition records when a base entered a state. The timestamps are
// kept in the run record only; no command reads or prints them.
type Transition struct {
	State State
	At    time.Time
}

// BaseRun is one base's progress through the state machine.
type BaseRun struct {
	Base  pkgmodel.Base
	State State
	Err   error

	// History records every transition in order, with its timestamp.
	History []Transition

	Dir           string // working directory the build driver runs in
	FetchResult   *fetcher.Result
	ArtifactPaths []string

	// Packages is this base's sub-package list as reparsed straight from
	// its checkout after fetching (spec.md §4.2 "reparse its recipe"),
	// superseding whatever stale metadata the resolver originally saw.
	Packages []pkgmodel.LocalPackage
}

func newRun(base pkgmodel.Base) *BaseRun {
	return &BaseRun{Base: base, State: StatePending}
}

// advance records a transition to s.
func (r *BaseRun) advance(s State, now time.Time) {
	r.State = s
	r.History = append(r.History, Transition{State: s, At: now})
}

// fail records a transition to StateFailed with the causing error.
func (r *BaseRun) fail(err error, now time.Time) {
	r.Err = err
	r.advance(StateFailed, now)
}
