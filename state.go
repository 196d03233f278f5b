package codescope

import (
	"context"
	"fmt"
	"time"
)

// State is a step of the workflow state machine.
type State int

// Workflow states. Every run moves forward through Start, Dispatched,
// Aggregating, Synthesizing and Done, or ends in Failed.
const (
	StateStart State = iota
	StateDispatched
	StateAggregating
	StateSynthesizing
	StateDone
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDispatched:
		return "dispatched"
	case StateAggregating:
		return "aggregating"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next == s+1
}

// StateObserver is notified of every state transition of a run.
type StateObserver func(ctx context.Context, runID string, from, to State)

// runState is the per-invocation workflow state. It is created by Run and
// never shared between invocations.
type runState struct {
	id      string
	input   string
	state   State
	results *Aggregator
	output  string
	started time.Time
}

func newRunState(id, input string, labels []string) *runState {
	return &runState{
		id:      id,
		input:   input,
		state:   StateStart,
		results: NewAggregator(labels...),
		started: time.Now(),
	}
}

// advance moves the run to the next state. Only the orchestrator goroutine
// calls it, so it needs no locking.
func (r *runState) advance(next State) (from State) {
	if !r.state.CanTransition(next) {
		panic(fmt.Sprintf("codescope: illegal transition %s -> %s", r.state, next))
	}
	from = r.state
	r.state = next
	return from
}

// Report is the result of a successful workflow run.
type Report struct {
	RunID    string          `json:"run_id" yaml:"run_id"`
	Workflow string          `json:"workflow" yaml:"workflow"`
	Input    string          `json:"-" yaml:"-"`
	Results  []LabeledResult `json:"analyses" yaml:"analyses"`
	Output   string          `json:"final_report" yaml:"final_report"`
	// Unavailable lists the labels that failed in degraded mode.
	Unavailable []string      `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Reviews renders every result with its heading.
func (r *Report) Reviews() []string {
	reviews := make([]string, len(r.Results))
	for i, result := range r.Results {
		reviews[i] = result.String()
	}
	return reviews
}

// Result returns the result contributed by label.
func (r *Report) Result(label string) (LabeledResult, bool) {
	for _, result := range r.Results {
		if result.Label == label {
			return result, true
		}
	}
	return LabeledResult{}, false
}
