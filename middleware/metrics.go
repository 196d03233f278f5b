package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentstation/codescope"
)

// MetricsCollector collects task execution metrics.
type MetricsCollector interface {
	RecordStart(label string)
	RecordEnd(label string, duration time.Duration, err error)
}

// Metrics adds metrics collection to a task.
func Metrics(collector MetricsCollector) Middleware {
	return func(task codescope.Task) codescope.Task {
		return &middlewareTask{
			inner: task,
			exec: func(ctx context.Context, input string) (codescope.LabeledResult, error) {
				collector.RecordStart(task.Label())
				start := time.Now()
				result, err := task.Execute(ctx, input)
				collector.RecordEnd(task.Label(), time.Since(start), err)
				return result, err
			},
		}
	}
}

const metricsNamespace = "codescope"

// PrometheusCollector records task metrics in Prometheus.
type PrometheusCollector struct {
	// TasksTotal counts finished tasks.
	// Labels: task, outcome (success, or the service error kind)
	TasksTotal *prometheus.CounterVec

	// TaskDurationSeconds measures task latency including retries.
	// Labels: task
	TaskDurationSeconds *prometheus.HistogramVec

	// TasksInFlight is the number of tasks currently executing.
	// Labels: task
	TasksInFlight *prometheus.GaugeVec
}

// NewPrometheusCollector creates the task metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "task",
				Name:      "executions_total",
				Help:      "Total number of task executions by outcome.",
			},
			[]string{"task", "outcome"},
		),
		TaskDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "task",
				Name:      "duration_seconds",
				Help:      "Task execution latency in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		TasksInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "task",
				Name:      "in_flight",
				Help:      "Number of tasks currently executing.",
			},
			[]string{"task"},
		),
	}
}

// RecordStart implements MetricsCollector.
func (c *PrometheusCollector) RecordStart(label string) {
	c.TasksInFlight.WithLabelValues(label).Inc()
}

// RecordEnd implements MetricsCollector.
func (c *PrometheusCollector) RecordEnd(label string, duration time.Duration, err error) {
	c.TasksInFlight.WithLabelValues(label).Dec()
	c.TaskDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
	c.TasksTotal.WithLabelValues(label, Outcome(err)).Inc()
}

// Outcome maps a task error to a low-cardinality metric label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var se *codescope.ServiceError
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	return "error"
}
