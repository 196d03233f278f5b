/*
Package codescope runs a fan-out/fan-in review of a source snippet against a
text-generation model.

A Workflow dispatches the same input to several independent Tasks, one per
analysis axis (time complexity, space complexity, readability by default),
waits for all of them, and passes the collected results to a Synthesizer that
writes the final report.

Basic usage:

	timeTask, _ := codescope.NewTask("time", "⏱️ **Time Complexity:**",
	    "Analyze ONLY the time complexity of:\n{{.Code}}", gen)
	spaceTask, _ := codescope.NewTask("space", "💾 **Space Complexity:**",
	    "Analyze ONLY the space complexity of:\n{{.Code}}", gen)
	synth, _ := codescope.NewSynthesizer(
	    "Summarize and score:\n{{.Code}}\n\n{{.Reviews}}", gen)

	wf, err := codescope.NewWorkflow("review",
	    []codescope.Task{timeTask, spaceTask}, synth)
	report, err := wf.Run(ctx, code)

Run state machine:

	start -> dispatched -> aggregating -> synthesizing -> done
	  any non-terminal state -> failed

Error handling:

Run returns a *WorkflowError whose Stage is dispatch, aggregate or
synthesize. Task failures wrap a *TaskExecutionError, synthesis failures a
*SynthesisError, and both wrap the *ServiceError produced by the generator
call. By default the first task failure cancels the remaining tasks and fails
the run; WithDegradation lets the run synthesize from the axes that succeeded.

Workflows are usually built from a YAML descriptor with the definition
package rather than by hand.
*/
package codescope
