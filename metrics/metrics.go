// Package metrics provides Prometheus metrics for an ingestion run.
//
// Each Run owns a private registry so that several runs in one process, and
// tests, never share counters. A run's metrics can be written in the node
// exporter textfile format once it finishes.
package metrics

import (
	"time"

	"github.com/poiesic/archivist/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "archivist"

// Run collects the metrics of one ingestion run.
type Run struct {
	registry *prometheus.Registry

	filesTotal    *prometheus.CounterVec
	filesSkipped  prometheus.Counter
	bytesUploaded prometheus.Counter
	fileDuration  *prometheus.HistogramVec
	lastRun       prometheus.Gauge
}

// NewRun registers a fresh set of run metrics. The ingestion label is
// attached to every series.
func NewRun(ingestion string) *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"ingestion": ingestion}, reg))

	return &Run{
		registry: reg,
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Files attempted, by status and failure stage",
			},
			[]string{"status", "stage"},
		),
		filesSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Files skipped because an earlier run stored them",
			},
		),
		bytesUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_uploaded_total",
				Help:      "Content bytes of successfully stored files",
			},
		),
		fileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_duration_seconds",
				Help:      "Time to store one file, metadata and content",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"status"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the run finished",
			},
		),
	}
}

// RecordOutcome counts one attempted file.
func (r *Run) RecordOutcome(o core.Outcome, elapsed time.Duration) {
	status := "success"
	if !o.Succeeded() {
		status = "failure"
	}
	stage := o.Stage.String()
	if stage == "" {
		stage = "none"
	}
	r.filesTotal.WithLabelValues(status, stage).Inc()
	r.fileDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if o.Succeeded() {
		r.bytesUploaded.Add(float64(o.Size))
	}
}

// RecordSkipped counts one skipped file.
func (r *Run) RecordSkipped() {
	r.filesSkipped.Inc()
}

// Finish stamps the completion time.
func (r *Run) Finish(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// Registry exposes the run's registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
