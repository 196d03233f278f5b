package codescope_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/agentstation/codescope"
)

func echo(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

func benchmarkWorkflow(b *testing.B, tasks int, opts ...codescope.WorkflowOption) *codescope.Workflow {
	b.Helper()

	gen := codescope.GeneratorFunc(echo)
	list := make([]codescope.Task, tasks)
	for i := range list {
		task, err := codescope.NewTask(fmt.Sprintf("axis-%d", i), "", "{{.Code}}", gen)
		if err != nil {
			b.Fatal(err)
		}
		list[i] = task
	}
	synth, err := codescope.NewSynthesizer("{{.Reviews}}", gen)
	if err != nil {
		b.Fatal(err)
	}
	wf, err := codescope.NewWorkflow("bench", list, synth, opts...)
	if err != nil {
		b.Fatal(err)
	}
	return wf
}

func BenchmarkWorkflowRun(b *testing.B) {
	for _, n := range []int{1, 3, 16} {
		b.Run(fmt.Sprintf("tasks=%d", n), func(b *testing.B) {
			wf := benchmarkWorkflow(b, n)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := wf.Run(ctx, "int add(int a,int b){return a+b;}"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkWorkflowRunParallel(b *testing.B) {
	wf := benchmarkWorkflow(b, 3)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := wf.Run(ctx, "x := 1"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkNewTask(b *testing.B) {
	gen := codescope.GeneratorFunc(echo)
	for i := 0; i < b.N; i++ {
		_, _ = codescope.NewTask("time", "", "Analyze:\n{{.Code}}", gen)
	}
}
