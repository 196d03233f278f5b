package codescope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/agentstation/codescope"

// Workflow fans one input out to every registered task, joins on all of
// them, and hands the complete result set to the synthesizer.
//
// A Workflow is immutable after construction and safe for concurrent Run
// calls; each call owns its own state.
type Workflow struct {
	name  string
	tasks []Task
	synth Synthesizer
	opts  workflowOptions
}

// workflowOptions holds configuration for a Workflow.
type workflowOptions struct {
	logger   Logger
	observer StateObserver
	tracer   trace.Tracer
	degrade  bool
	newID    func() string
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*workflowOptions)

// WithLogger adds logging to the workflow.
func WithLogger(logger Logger) WorkflowOption {
	return func(o *workflowOptions) {
		o.logger = logger
	}
}

// WithStateObserver registers a callback for state transitions.
func WithStateObserver(observer StateObserver) WorkflowOption {
	return func(o *workflowOptions) {
		o.observer = observer
	}
}

// WithTracerProvider sets the OpenTelemetry provider for run spans.
// The global provider is used by default and when tp is nil.
func WithTracerProvider(tp trace.TracerProvider) WorkflowOption {
	return func(o *workflowOptions) {
		if tp != nil {
			o.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithDegradation controls whether a run may synthesize from a subset of
// results. When enabled, a failed task does not cancel its siblings; if at
// least one task succeeds the synthesizer runs with the failed axes marked
// unavailable, and only a run where every task failed is a failure.
// Disabled by default: any task failure fails the run.
func WithDegradation(enabled bool) WorkflowOption {
	return func(o *workflowOptions) {
		o.degrade = enabled
	}
}

// WithRunIDs overrides the run id generator. A nil generator keeps the
// default uuid one.
func WithRunIDs(newID func() string) WorkflowOption {
	return func(o *workflowOptions) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// NewWorkflow creates a workflow from its tasks and synthesizer.
// Labels must be non-empty and unique.
func NewWorkflow(name string, tasks []Task, synth Synthesizer, opts ...WorkflowOption) (*Workflow, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	if synth == nil {
		return nil, ErrNoSynthesizer
	}

	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("task %d is nil", i)
		}
		label := t.Label()
		if strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("task %d: %w", i, ErrEmptyLabel)
		}
		if seen[label] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
		}
		seen[label] = true
	}

	if name == "" {
		name = "workflow"
	}

	w := &Workflow{
		name:  name,
		tasks: append([]Task(nil), tasks...),
		synth: synth,
		opts: workflowOptions{
			logger: nopLogger{},
			tracer: otel.Tracer(instrumentationName),
			newID:  uuid.NewString,
		},
	}
	for _, opt := range opts {
		opt(&w.opts)
	}

	return w, nil
}

// Name returns the workflow's identifier.
func (w *Workflow) Name() string {
	return w.name
}

// Labels returns the task labels in registration order.
func (w *Workflow) Labels() []string {
	labels := make([]string, len(w.tasks))
	for i, t := range w.tasks {
		labels[i] = t.Label()
	}
	return labels
}

// Run executes the workflow for input. It returns either a complete report
// or a *WorkflowError naming the failed stage; a partial report is never
// returned.
func (w *Workflow) Run(ctx context.Context, input string) (*Report, error) {
	st := newRunState(w.opts.newID(), input, w.Labels())

	ctx, span := w.opts.tracer.Start(ctx, "codescope.Run",
		trace.WithAttributes(
			attribute.String("codescope.workflow", w.name),
			attribute.String("codescope.run_id", st.id),
			attribute.Int("codescope.tasks", len(w.tasks)),
		))
	defer span.End()

	w.opts.logger.Info(ctx, "workflow started", "workflow", w.name, "run_id", st.id, "tasks", len(w.tasks))

	report, err := w.run(ctx, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.opts.logger.Error(ctx, "workflow failed",
			"workflow", w.name,
			"run_id", st.id,
			"duration", time.Since(st.started),
			"error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	w.opts.logger.Info(ctx, "workflow completed",
		"workflow", w.name,
		"run_id", st.id,
		"duration", report.Duration,
		"unavailable", len(report.Unavailable))
	return report, nil
}

func (w *Workflow) run(ctx context.Context, st *runState) (*Report, error) {
	if strings.TrimSpace(st.input) == "" {
		return nil, w.fail(ctx, st, StageDispatch, "", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, w.fail(ctx, st, StageDispatch, "", err)
	}

	w.advance(ctx, st, StateDispatched)
	failures := w.dispatch(ctx, st)

	var unavailable []string
	if len(failures) > 0 {
		if !w.opts.degrade || len(failures) == len(w.tasks) {
			first := failures[0]
			return nil, w.fail(ctx, st, StageAggregate, first.Label, first)
		}
		for _, f := range failures {
			unavailable = append(unavailable, f.Label)
		}
	}

	// Join barrier: every task either contributed or is accounted for as
	// unavailable before synthesis starts.
	if missing := st.results.Missing(); !sameLabels(missing, unavailable) {
		return nil, w.fail(ctx, st, StageAggregate, "", fmt.Errorf("results missing for %v", missing))
	}

	w.advance(ctx, st, StateSynthesizing)

	output, err := w.synth.Synthesize(ctx, st.input, w.synthesisInput(st, unavailable))
	if err != nil {
		var se *SynthesisError
		if !errors.As(err, &se) {
			err = &SynthesisError{Cause: err}
		}
		return nil, w.fail(ctx, st, StageSynthesize, "", err)
	}

	st.output = output
	w.advance(ctx, st, StateDone)

	return &Report{
		RunID:       st.id,
		Workflow:    w.name,
		Input:       st.input,
		Results:     st.results.Results(),
		Output:      st.output,
		Unavailable: unavailable,
		Duration:    time.Since(st.started),
	}, nil
}

// dispatch runs every task concurrently and returns once all of them have
// returned. Failures are reported in the order they should be surfaced: the
// first observed failure in strict mode, registration order in degraded mode.
func (w *Workflow) dispatch(ctx context.Context, st *runState) []*TaskExecutionError {
	errs := make([]*TaskExecutionError, len(w.tasks))

	var g *errgroup.Group
	taskCtx := ctx
	if w.opts.degrade {
		g = new(errgroup.Group)
	} else {
		g, taskCtx = errgroup.WithContext(ctx)
	}

	for i, t := range w.tasks {
		i, t := i, t
		g.Go(func() error {
			if err := w.execute(taskCtx, st, t); err != nil {
				errs[i] = err
				return err
			}
			return nil
		})
	}

	w.advance(ctx, st, StateAggregating)
	firstErr := g.Wait()

	var failures []*TaskExecutionError
	if !w.opts.degrade {
		if firstErr != nil {
			failures = append(failures, asTaskError("", firstErr))
		}
		return failures
	}
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

// execute runs one task and appends its result.
func (w *Workflow) execute(ctx context.Context, st *runState, t Task) *TaskExecutionError {
	label := t.Label()
	start := time.Now()

	result, err := t.Execute(ctx, st.input)
	if err == nil && result.Label != label {
		err = fmt.Errorf("%w: got %q", ErrLabelMismatch, result.Label)
	}
	if err == nil {
		err = st.results.Append(result)
	}
	if err != nil {
		w.opts.logger.Debug(ctx, "task failed",
			"run_id", st.id,
			"task", label,
			"duration", time.Since(start),
			"error", err)
		return asTaskError(label, err)
	}

	w.opts.logger.Debug(ctx, "task completed",
		"run_id", st.id,
		"task", label,
		"duration", time.Since(start))
	return nil
}

// synthesisInput returns the results handed to the synthesizer. Unavailable
// axes get a placeholder entry that never reaches the report.
func (w *Workflow) synthesisInput(st *runState, unavailable []string) []LabeledResult {
	if len(unavailable) == 0 {
		return st.results.Results()
	}

	results := make([]LabeledResult, 0, len(w.tasks))
	for _, t := range w.tasks {
		if r, ok := st.results.Get(t.Label()); ok {
			results = append(results, r)
			continue
		}
		results = append(results, LabeledResult{Label: t.Label(), Text: UnavailableText, unavailable: true})
	}
	return results
}

// sameLabels reports whether a and b hold the same set of labels.
func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, label := range a {
		set[label] = true
	}
	for _, label := range b {
		if !set[label] {
			return false
		}
	}
	return true
}

func (w *Workflow) advance(ctx context.Context, st *runState, next State) {
	from := st.advance(next)
	w.opts.logger.Debug(ctx, "workflow state", "run_id", st.id, "from", from.String(), "to", next.String())
	if w.opts.observer != nil {
		w.opts.observer(ctx, st.id, from, next)
	}
}

func (w *Workflow) fail(ctx context.Context, st *runState, stage Stage, label string, cause error) error {
	w.advance(ctx, st, StateFailed)
	return &WorkflowError{
		Workflow: w.name,
		Stage:    stage,
		Label:    label,
		Cause:    cause,
		Results:  st.results.Results(),
	}
}
