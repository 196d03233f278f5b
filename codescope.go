package codescope

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/agentstation/codescope/internal/retry"
)

// Generator is the text-generation capability the workflow delegates to.
type Generator interface {
	// Generate returns the completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc is a function that implements Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// LabeledResult is the contribution of one task to a run.
type LabeledResult struct {
	// Label identifies the analysis axis, for example "time".
	Label string `json:"label" yaml:"label"`
	// Heading is rendered ahead of Text when the result is displayed.
	Heading string `json:"heading,omitempty" yaml:"heading,omitempty"`
	Text    string `json:"text" yaml:"text"`

	// unavailable marks the placeholder of an axis that failed in degraded mode.
	unavailable bool
}

// Unavailable reports whether r stands in for an axis that failed.
func (r LabeledResult) Unavailable() bool {
	return r.unavailable
}

// String renders the result with its heading.
func (r LabeledResult) String() string {
	if r.Heading == "" {
		return r.Text
	}
	return r.Heading + "\n" + r.Text
}

// Task is one independent analysis axis. A task reads only the workflow
// input and produces exactly one labeled result per successful Execute.
type Task interface {
	// Label returns the axis label, unique within a workflow.
	Label() string

	// Execute runs the analysis. Failures are *TaskExecutionError.
	Execute(ctx context.Context, input string) (LabeledResult, error)
}

// promptData is the value prompt templates are rendered with.
type promptData struct {
	Code        string
	Reviews     string
	Unavailable []string
}

// callOptions configures how a task or synthesizer calls its generator.
type callOptions struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	linear     bool
	separator  string
}

// CallOption configures a task or synthesizer.
type CallOption func(*callOptions)

// WithTimeout bounds every generator call. Expiry fails the call with a
// ServiceError of kind timeout. Zero disables the deadline.
func WithTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// WithRetry retries retryable service failures up to maxRetries times with
// exponential backoff starting at delay.
func WithRetry(maxRetries int, delay time.Duration) CallOption {
	return func(o *callOptions) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
		o.linear = false
	}
}

// WithLinearRetry retries retryable service failures up to maxRetries times,
// waiting delay between attempts.
func WithLinearRetry(maxRetries int, delay time.Duration) CallOption {
	return func(o *callOptions) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
		o.linear = true
	}
}

// WithSeparator sets the string joining rendered results in the synthesis
// prompt. Tasks ignore it.
func WithSeparator(separator string) CallOption {
	return func(o *callOptions) {
		o.separator = separator
	}
}

func newCallOptions(opts []CallOption) callOptions {
	o := defaultCallOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// call performs one logical generator call, honoring timeout and retry.
func (o callOptions) call(ctx context.Context, gen Generator, prompt string) (string, error) {
	policy := retry.Exponential(o.maxRetries, o.retryDelay)
	if o.linear {
		policy = retry.Linear(o.maxRetries, o.retryDelay)
	}
	policy.Retryable = isRetryable

	var text string
	err := policy.Do(ctx, func() error {
		callCtx := ctx
		if o.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}

		out, err := gen.Generate(callCtx, prompt)
		if err != nil {
			return asServiceError(err)
		}
		if strings.TrimSpace(out) == "" {
			return &ServiceError{Kind: KindMalformed, Cause: errEmptyCompletion}
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// task is the generator-backed Task implementation.
type task struct {
	label   string
	heading string
	prompt  *template.Template
	gen     Generator
	opts    callOptions
}

// NewTask creates a task that renders promptTemplate with the input code
// ({{.Code}}) and sends it to gen.
//
// Example:
//
//	timeTask, err := codescope.NewTask("time", "⏱️ **Time Complexity:**",
//	    "Analyze the following code ONLY for time complexity.\n\nCode:\n{{.Code}}",
//	    client,
//	    codescope.WithTimeout(30*time.Second),
//	)
func NewTask(label, heading, promptTemplate string, gen Generator, opts ...CallOption) (Task, error) {
	if strings.TrimSpace(label) == "" {
		return nil, ErrEmptyLabel
	}
	if gen == nil {
		return nil, fmt.Errorf("task %q: %w", label, ErrNilGenerator)
	}

	tmpl, err := parsePrompt(label, promptTemplate)
	if err != nil {
		return nil, err
	}

	return &task{
		label:   label,
		heading: heading,
		prompt:  tmpl,
		gen:     gen,
		opts:    newCallOptions(opts),
	}, nil
}

// Label returns the axis label.
func (t *task) Label() string {
	return t.label
}

// Execute renders the prompt and performs the generator call.
func (t *task) Execute(ctx context.Context, input string) (LabeledResult, error) {
	prompt, err := render(t.prompt, promptData{Code: input})
	if err != nil {
		return LabeledResult{}, &TaskExecutionError{Label: t.label, Cause: err}
	}

	text, err := t.opts.call(ctx, t.gen, prompt)
	if err != nil {
		return LabeledResult{}, &TaskExecutionError{Label: t.label, Cause: err}
	}

	return LabeledResult{Label: t.label, Heading: t.heading, Text: text}, nil
}

// parsePrompt parses a prompt template and renders it once with empty data
// so unknown fields fail at construction instead of during a run.
func parsePrompt(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt %q is empty", name)
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %q: %w", name, err)
	}
	if _, err := render(tmpl, promptData{}); err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
