package middleware

import (
	"context"
	"time"

	"github.com/agentstation/codescope"
)

// Logging adds structured logging around task execution.
func Logging(logger codescope.Logger) Middleware {
	return func(task codescope.Task) codescope.Task {
		return &middlewareTask{
			inner: task,
			exec: func(ctx context.Context, input string) (codescope.LabeledResult, error) {
				logger.Info(ctx, "task starting", "task", task.Label(), "input_bytes", len(input))
				start := time.Now()

				result, err := task.Execute(ctx, input)

				if err != nil {
					logger.Error(ctx, "task failed",
						"task", task.Label(),
						"duration", time.Since(start),
						"error", err)
				} else {
					logger.Info(ctx, "task completed",
						"task", task.Label(),
						"duration", time.Since(start),
						"output_bytes", len(result.Text))
				}

				return result, err
			},
		}
	}
}
