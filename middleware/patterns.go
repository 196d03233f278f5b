package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentstation/codescope"
)

// ErrCircuitOpen is returned while a task's circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker fails a task fast after threshold consecutive failures,
// until cooldown has passed. The breaker state is shared by every run of the
// wrapped task, so a workflow reused across requests stops calling an
// unhealthy service. Canceled executions do not count as failures.
func CircuitBreaker(threshold int, cooldown time.Duration) Middleware {
	return func(task codescope.Task) codescope.Task {
		var mu sync.Mutex
		failures := 0
		lastFailure := time.Time{}
		state := breakerClosed

		return &middlewareTask{
			inner: task,
			exec: func(ctx context.Context, input string) (codescope.LabeledResult, error) {
				mu.Lock()
				if state == breakerOpen {
					if time.Since(lastFailure) < cooldown {
						mu.Unlock()
						return codescope.LabeledResult{}, &codescope.TaskExecutionError{Label: task.Label(), Cause: ErrCircuitOpen}
					}
					state = breakerHalfOpen
				}
				mu.Unlock()

				result, err := task.Execute(ctx, input)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					if errors.Is(err, context.Canceled) {
						return result, err
					}
					failures++
					lastFailure = time.Now()
					if state == breakerHalfOpen || failures >= threshold {
						state = breakerOpen
					}
					return result, err
				}

				state = breakerClosed
				failures = 0
				return result, nil
			},
		}
	}
}
