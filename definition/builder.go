package definition

import (
	"errors"
	"fmt"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/middleware"
)

// Builder compiles definitions into workflows.
type Builder struct {
	// Generator serves every task and the synthesizer.
	Generator codescope.Generator

	// CallOptions apply before the descriptor's own call settings, so the
	// descriptor wins where both set a value.
	CallOptions []codescope.CallOption

	// Middleware wraps every task, outermost first.
	Middleware []middleware.Middleware

	// WorkflowOptions apply after the descriptor's settings.
	WorkflowOptions []codescope.WorkflowOption
}

// Build compiles def into a workflow.
func (b Builder) Build(def *Definition) (*codescope.Workflow, error) {
	if def == nil {
		return nil, errors.New("nil workflow definition")
	}
	if b.Generator == nil {
		return nil, codescope.ErrNilGenerator
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	base := append(append([]codescope.CallOption(nil), b.CallOptions...), def.Defaults.callOptions()...)

	tasks := make([]codescope.Task, 0, len(def.Tasks))
	for _, td := range def.Tasks {
		opts := append(append([]codescope.CallOption(nil), base...),
			(&CallDefinition{Timeout: td.Timeout, Retry: td.Retry}).callOptions()...)

		task, err := codescope.NewTask(td.Label, td.Heading, td.Prompt, b.Generator, opts...)
		if err != nil {
			return nil, fmt.Errorf("build task %q: %w", td.Label, err)
		}
		tasks = append(tasks, task)
	}
	tasks = middleware.ApplyAll(tasks, b.Middleware...)

	sd := def.Synthesizer
	synthOpts := append(append([]codescope.CallOption(nil), base...),
		(&CallDefinition{Timeout: sd.Timeout, Retry: sd.Retry}).callOptions()...)
	if sd.Separator != "" {
		synthOpts = append(synthOpts, codescope.WithSeparator(sd.Separator))
	}
	synth, err := codescope.NewSynthesizer(sd.Prompt, b.Generator, synthOpts...)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}

	var wopts []codescope.WorkflowOption
	if def.Degrade {
		wopts = append(wopts, codescope.WithDegradation(true))
	}
	wopts = append(wopts, b.WorkflowOptions...)

	return codescope.NewWorkflow(def.Name, tasks, synth, wopts...)
}
