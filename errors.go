package codescope

import (
	"context"
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrEmptyInput is returned when Run receives blank input.
	ErrEmptyInput = errors.New("codescope: empty input")

	// ErrNoTasks is returned when a workflow is built without tasks.
	ErrNoTasks = errors.New("codescope: workflow has no tasks")

	// ErrNoSynthesizer is returned when a workflow is built without a synthesizer.
	ErrNoSynthesizer = errors.New("codescope: workflow has no synthesizer")

	// ErrNilGenerator is returned when a task or synthesizer has no generator.
	ErrNilGenerator = errors.New("codescope: nil generator")

	// ErrEmptyLabel is returned when a task has no label.
	ErrEmptyLabel = errors.New("codescope: empty task label")

	// ErrDuplicateLabel is returned when two tasks share a label.
	ErrDuplicateLabel = errors.New("codescope: duplicate task label")

	// ErrUnknownLabel is returned when a result is appended for a label that was never registered.
	ErrUnknownLabel = errors.New("codescope: unknown result label")

	// ErrDuplicateResult is returned when a label contributes a second result.
	ErrDuplicateResult = errors.New("codescope: duplicate result")

	// ErrLabelMismatch is returned when a task reports a result under a label
	// other than its own.
	ErrLabelMismatch = errors.New("codescope: result label does not match task")

	errEmptyCompletion = errors.New("empty completion")
)

// Stage identifies where a workflow run failed.
type Stage string

// Workflow stages reported by WorkflowError.
const (
	StageDispatch   Stage = "dispatch"
	StageAggregate  Stage = "aggregate"
	StageSynthesize Stage = "synthesize"
)

// ErrorKind classifies a ServiceError.
type ErrorKind string

// Service error kinds.
const (
	KindTransport ErrorKind = "transport"
	KindRateLimit ErrorKind = "rate_limit"
	KindService   ErrorKind = "service"
	KindMalformed ErrorKind = "malformed"
	KindTimeout   ErrorKind = "timeout"
	KindCanceled  ErrorKind = "canceled"
)

// ServiceError is a fault of the text-generation service or the path to it.
type ServiceError struct {
	Kind ErrorKind
	// StatusCode is the HTTP status returned by the service, zero when unknown.
	StatusCode int
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("service error (%s, status %d): %v", e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("service error (%s): %v", e.Kind, e.Cause)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether repeating the call may succeed.
func (e *ServiceError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindRateLimit, KindTimeout:
		return true
	case KindService:
		return e.StatusCode == 0 || e.StatusCode >= 500
	default:
		return false
	}
}

// TaskExecutionError reports that one analysis task failed.
type TaskExecutionError struct {
	Label string
	Cause error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Label, e.Cause)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Cause
}

// SynthesisError reports that the final synthesis call failed.
type SynthesisError struct {
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// WorkflowError is the single error surfaced by Workflow.Run.
type WorkflowError struct {
	Workflow string
	Stage    Stage
	// Label names the failed task for aggregate failures.
	Label string
	Cause error
	// Results holds the entries collected before the failure. It is complete
	// for synthesize failures and partial otherwise.
	Results []LabeledResult
}

func (e *WorkflowError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("workflow %s failed at %s (task %q): %v", e.Workflow, e.Stage, e.Label, causeMessage(e.Cause))
	}
	return fmt.Sprintf("workflow %s failed at %s: %v", e.Workflow, e.Stage, causeMessage(e.Cause))
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// causeMessage strips the task wrapper since the label is already reported.
func causeMessage(err error) string {
	var te *TaskExecutionError
	if errors.As(err, &te) && te.Cause != nil {
		return te.Cause.Error()
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// asServiceError classifies an arbitrary generator error.
func asServiceError(err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	kind := KindService
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	}
	return &ServiceError{Kind: kind, Cause: err}
}

// asTaskError makes sure a task failure carries its label.
func asTaskError(label string, err error) *TaskExecutionError {
	var te *TaskExecutionError
	if errors.As(err, &te) {
		return te
	}
	return &TaskExecutionError{Label: label, Cause: err}
}

func isRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
