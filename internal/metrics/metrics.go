// Package metrics records publish measurements for one invocation and
// writes them as a node_exporter textfile.
package metrics

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HyphaGroup/pubctl/internal/publish"
)

// Recorder implements publish.Recorder on a private registry
type Recorder struct {
	registry *prometheus.Registry

	// StageDuration tracks how long each pipeline stage ran
	StageDuration *prometheus.HistogramVec

	// Activities counts activity updates by state
	Activities *prometheus.CounterVec

	// WorkerExits counts worker exits by mode and exit code
	WorkerExits *prometheus.CounterVec

	// Runs counts finished commands by exit code
	Runs *prometheus.CounterVec

	// LastRun is the completion time of the last command
	LastRun prometheus.Gauge
}

var _ publish.Recorder = (*Recorder)(nil)

// New creates a Recorder with its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pubctl_stage_duration_seconds",
				Help:    "Duration of publish pipeline stages in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage", "status"},
		),
		Activities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubctl_activity_updates_total",
				Help: "Total number of activity updates by state",
			},
			[]string{"state"},
		),
		WorkerExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubctl_worker_exits_total",
				Help: "Total number of worker exits by mode and exit code",
			},
			[]string{"mode", "code"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pubctl_runs_total",
				Help: "Total number of publish commands by exit code",
			},
			[]string{"code"},
		),
		LastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pubctl_last_run_timestamp_seconds",
				Help: "Unix time the last publish command finished",
			},
		),
	}
}

// Registry returns the registry holding the collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (r *Recorder) ObserveActivity(a publish.TrackedActivity) {
	r.Activities.WithLabelValues(a.State.String()).Inc()
}

func (r *Recorder) ObserveWorkerExit(mode string, code int) {
	r.WorkerExits.WithLabelValues(mode, strconv.Itoa(code)).Inc()
}

func (r *Recorder) ObserveResult(code int) {
	r.Runs.WithLabelValues(strconv.Itoa(code)).Inc()
	r.LastRun.SetToCurrentTime()
}

// WriteTextfile writes the collected metrics to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
