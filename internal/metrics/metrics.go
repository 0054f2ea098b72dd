// Package metrics records per-stage provisioning timings and failures in a
// private Prometheus registry, optionally pushed to a Pushgateway once a run
// ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace prefixes every metric name.
const Namespace = "azvm"

// Recorder wraps the run metrics.
type Recorder struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	LastRunTime   prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of provisioning stages in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage", "status"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed provisioning stages by failure class",
		}, []string{"stage", "class"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Total number of provisioning runs by outcome",
		}, []string{"status"}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	reg.MustRegister(r.StageDuration, r.StageFailures, r.Runs, r.LastRunTime)
	return r
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStage records one finished stage. class is only used on failure.
func (r *Recorder) ObserveStage(stage string, d time.Duration, class string, failed bool) {
	status := "succeeded"
	if failed {
		status = "failed"
		if class == "" {
			class = "unknown"
		}
		r.StageFailures.WithLabelValues(stage, class).Inc()
	}
	r.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveRun records the outcome of a run.
func (r *Recorder) ObserveRun(status string, finished time.Time) {
	r.Runs.WithLabelValues(status).Inc()
	r.LastRunTime.Set(float64(finished.Unix()))
}

// Push sends the registry to a Pushgateway, grouped by run ID.
func (r *Recorder) Push(ctx context.Context, url, job, runID string) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
