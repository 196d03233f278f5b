package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the evaluate endpoint.
type Metrics struct {
	// RunsTotal counts evaluate requests.
	// Labels: outcome (success, rejected, dispatch, aggregate, synthesize, error)
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures workflow runs started by the endpoint.
	// Labels: outcome
	RunDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codescope",
				Subsystem: "http",
				Name:      "evaluations_total",
				Help:      "Total number of evaluate requests by outcome.",
			},
			[]string{"outcome"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "codescope",
				Subsystem: "http",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of workflow runs served over HTTP.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) observe(outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.RunDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}
