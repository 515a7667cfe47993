// Package metrics exports stage counters in the Prometheus text format. The
// pipeline is a batch job, so metrics are written to a node-exporter textfile
// after each invocation instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rewired-gh/polyedge/internal/pipeline"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	StageRuns        *prometheus.CounterVec
	RecordsProcessed *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	LastSuccess      *prometheus.GaugeVec

	CaptureRequests *prometheus.CounterVec
	CaptureMessages prometheus.Counter
}

// New creates a Metrics instance on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "polyedge"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Stage runs by outcome",
		}, []string{"stage", "status"}),
		RecordsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_processed_total",
			Help:      "Input records examined by stage",
		}, []string{"stage"}),
		RecordsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_skipped_total",
			Help:      "Input records skipped by stage and reason",
		}, []string{"stage", "reason"}),
		RecordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_written_total",
			Help:      "Output records written by stage",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage wall-clock duration",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run by stage",
		}, []string{"stage"}),
		CaptureRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "http_requests_total",
			Help:      "Capture HTTP requests by outcome",
		}, []string{"outcome"}),
		CaptureMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "ws_messages_total",
			Help:      "Websocket frames appended to capture logs",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStage folds one stage summary into the counters.
func (m *Metrics) RecordStage(_ context.Context, s *pipeline.Summary, runErr error) error {
	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	m.StageRuns.WithLabelValues(s.Stage, status).Inc()
	m.RecordsProcessed.WithLabelValues(s.Stage).Add(float64(s.Processed))
	m.RecordsWritten.WithLabelValues(s.Stage).Add(float64(s.Written))
	for reason, n := range s.SkipReasons {
		m.RecordsSkipped.WithLabelValues(s.Stage, reason).Add(float64(n))
	}
	m.StageDuration.WithLabelValues(s.Stage).Observe(s.Duration.Seconds())
	if runErr == nil {
		m.LastSuccess.WithLabelValues(s.Stage).Set(float64(s.Started.Add(s.Duration).Unix()))
	}
	return nil
}

// WriteTextfile atomically writes all metrics to path for the node exporter's
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

var _ pipeline.Recorder = (*Metrics)(nil)
