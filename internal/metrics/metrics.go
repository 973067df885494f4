// Package metrics holds the Prometheus instruments of one run. The registry
// is private to the run and is written out as a node-exporter textfile at
// exit when --metrics-file is set.
//
// All methods are safe on a nil *Metrics so callers never need to check
// whether metrics are enabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "histpack"

// Metrics groups the counters and histograms updated during a run.
type Metrics struct {
	registry *prometheus.Registry

	JobsLaunched    prometheus.Counter
	JobsFinished    *prometheus.CounterVec
	JobsActive      prometheus.Gauge
	CompareFailures prometheus.Counter
	FilesScanned    *prometheus.CounterVec
	BytesWritten    prometheus.Counter
	ToolCalls       *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry. runID is attached as a
// constant label so textfiles from consecutive runs can be told apart.
func New(runID string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"run_id": runID}

	m := &Metrics{
		registry: reg,
		JobsLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_launched_total",
			Help: "Jobs launched by the scheduler.", ConstLabels: labels,
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal state, by state.", ConstLabels: labels,
		}, []string{"state"}),
		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jobs_active",
			Help: "Jobs currently in a non-terminal state.", ConstLabels: labels,
		}),
		CompareFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "compare_failures_total",
			Help: "Sampled frame comparisons that differed.", ConstLabels: labels,
		}),
		FilesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_scanned_total",
			Help: "Files classified by the catalog builder, by component.", ConstLabels: labels,
		}, []string{"component"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "output_bytes_total",
			Help: "Bytes written to merged or copied outputs.", ConstLabels: labels,
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_invocations_total",
			Help: "External tool invocations, by tool and outcome.", ConstLabels: labels,
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_duration_seconds",
			Help:        "Wall time of external tool invocations.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.JobsLaunched, m.JobsFinished, m.JobsActive, m.CompareFailures,
		m.FilesScanned, m.BytesWritten, m.ToolCalls, m.ToolDuration,
	)
	return m
}

// ObserveTool records one external tool invocation.
func (m *Metrics) ObserveTool(tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// JobStarted marks a job launch.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsLaunched.Inc()
	m.JobsActive.Inc()
}

// JobFinished moves a job out of the active gauge into the terminal counter.
func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.JobsActive.Dec()
	m.JobsFinished.WithLabelValues(state).Inc()
}

// CompareFailed counts one differing comparison.
func (m *Metrics) CompareFailed() {
	if m == nil {
		return
	}
	m.CompareFailures.Inc()
}

// FileScanned counts one classified file of component.
func (m *Metrics) FileScanned(component string) {
	if m == nil {
		return
	}
	m.FilesScanned.WithLabelValues(component).Inc()
}

// OutputWritten adds n bytes to the output total.
func (m *Metrics) OutputWritten(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes the registry in Prometheus text format to path,
// atomically replacing any previous file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
