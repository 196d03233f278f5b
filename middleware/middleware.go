// Package middleware provides task decorators for cross-cutting concerns
// like logging, metrics, tracing and circuit breaking.
package middleware

import (
	"context"

	"github.com/agentstation/codescope"
)

// Middleware modifies task behavior.
type Middleware func(codescope.Task) codescope.Task

// middlewareTask wraps a task to replace its Execute.
type middlewareTask struct {
	inner codescope.Task
	exec  func(ctx context.Context, input string) (codescope.LabeledResult, error)
}

func (m *middlewareTask) Label() string {
	return m.inner.Label()
}

func (m *middlewareTask) Execute(ctx context.Context, input string) (codescope.LabeledResult, error) {
	if m.exec != nil {
		return m.exec(ctx, input)
	}
	return m.inner.Execute(ctx, input)
}

// Chain combines multiple middlewares into a single middleware.
// The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(task codescope.Task) codescope.Task {
		for i := len(middlewares) - 1; i >= 0; i-- {
			task = middlewares[i](task)
		}
		return task
	}
}

// Apply applies middleware to a task. The last middleware is the outermost.
func Apply(task codescope.Task, middlewares ...Middleware) codescope.Task {
	for _, mw := range middlewares {
		task = mw(task)
	}
	return task
}

// ApplyAll applies the chain to every task, preserving order.
func ApplyAll(tasks []codescope.Task, middlewares ...Middleware) []codescope.Task {
	if len(middlewares) == 0 {
		return tasks
	}
	chain := Chain(middlewares...)
	wrapped := make([]codescope.Task, len(tasks))
	for i, task := range tasks {
		wrapped[i] = chain(task)
	}
	return wrapped
}
