// Package metrics exposes run counters and stage timings for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	Registry      *prometheus.Registry
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	FetchFailures *prometheus.CounterVec
	LastRun       *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketpulse",
			Name:      "runs_total",
			Help:      "Job runs by terminal state and reason.",
		}, []string{"job", "kind", "state", "reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketpulse",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"job", "stage"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketpulse",
			Name:      "fetch_failures_total",
			Help:      "Symbols that could not be fetched, by source.",
		}, []string{"source"}),
		LastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "marketpulse",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run.",
		}, []string{"job"}),
	}
	m.Registry.MustRegister(
		m.Runs, m.StageDuration, m.FetchFailures, m.LastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(job, kind, state, reason string, at time.Time) {
	m.Runs.WithLabelValues(job, kind, state, reason).Inc()
	m.LastRun.WithLabelValues(job).Set(float64(at.Unix()))
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(job, stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(job, stage).Observe(d.Seconds())
}

// FetchFailed counts one failed symbol for source.
func (m *Metrics) FetchFailed(source string) {
	m.FetchFailures.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
