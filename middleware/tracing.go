package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/codescope"
)

const tracerName = "github.com/agentstation/codescope/middleware"

// Tracing wraps each task execution in a span. A nil provider uses the
// global one.
func Tracing(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(task codescope.Task) codescope.Task {
		return &middlewareTask{
			inner: task,
			exec: func(ctx context.Context, input string) (codescope.LabeledResult, error) {
				ctx, span := tracer.Start(ctx, "codescope.Task",
					trace.WithAttributes(attribute.String("codescope.task", task.Label())))
				defer span.End()

				result, err := task.Execute(ctx, input)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					span.SetAttributes(attribute.String("codescope.outcome", Outcome(err)))
					return result, err
				}

				span.SetAttributes(attribute.Int("codescope.output_bytes", len(result.Text)))
				span.SetStatus(codes.Ok, "")
				return result, nil
			},
		}
	}
}
