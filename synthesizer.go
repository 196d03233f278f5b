package codescope

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// UnavailableText replaces the text of a failed axis in the synthesis prompt
// when the workflow runs in degraded mode.
const UnavailableText = "(analysis unavailable)"

// Synthesizer turns the complete set of results into the final report.
type Synthesizer interface {
	// Synthesize is called once per run, after every task has contributed.
	// Failures are *SynthesisError.
	Synthesize(ctx context.Context, input string, results []LabeledResult) (string, error)
}

// synthesizer is the generator-backed Synthesizer implementation.
type synthesizer struct {
	prompt *template.Template
	gen    Generator
	opts   callOptions
}

// NewSynthesizer creates a synthesizer that renders promptTemplate with the
// input code ({{.Code}}), the rendered results joined by the separator
// ({{.Reviews}}) and the labels of unavailable axes ({{.Unavailable}}).
func NewSynthesizer(promptTemplate string, gen Generator, opts ...CallOption) (Synthesizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("synthesizer: %w", ErrNilGenerator)
	}

	tmpl, err := parsePrompt("synthesizer", promptTemplate)
	if err != nil {
		return nil, err
	}

	return &synthesizer{
		prompt: tmpl,
		gen:    gen,
		opts:   newCallOptions(opts),
	}, nil
}

// Synthesize renders the synthesis prompt and performs the generator call.
func (s *synthesizer) Synthesize(ctx context.Context, input string, results []LabeledResult) (string, error) {
	reviews := make([]string, len(results))
	var unavailable []string
	for i, result := range results {
		reviews[i] = result.String()
		if result.unavailable {
			unavailable = append(unavailable, result.Label)
		}
	}

	prompt, err := render(s.prompt, promptData{
		Code:        input,
		Reviews:     strings.Join(reviews, s.opts.separator),
		Unavailable: unavailable,
	})
	if err != nil {
		return "", &SynthesisError{Cause: err}
	}

	output, err := s.opts.call(ctx, s.gen, prompt)
	if err != nil {
		return "", &SynthesisError{Cause: err}
	}
	return output, nil
}
