// Package metrics exposes Prometheus collectors for lifecycle transitions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the lifecycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	LockWait           prometheus.Histogram
	TrailNodes         *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry so several engines can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{Registry: reg}

	m.TransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewline_transitions_total",
			Help: "Total number of lifecycle transitions by operation and result",
		},
		[]string{"operation", "result"},
	)

	m.TransitionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewline_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	m.LockWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewline_system_lock_wait_seconds",
			Help:    "Time spent waiting for the per-system lifecycle lock",
			Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	m.TrailNodes = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewline_trail_nodes",
			Help: "Current audit trail length per system",
		},
		[]string{"system_code"},
	)

	return m
}

// RecordTransition counts one transition attempt. result is "ok" or an error class.
func (m *Metrics) RecordTransition(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation, result).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

func (m *Metrics) SetTrailNodes(systemCode string, n int) {
	if m == nil {
		return
	}
	m.TrailNodes.WithLabelValues(systemCode).Set(float64(n))
}
