// Package metrics exposes Prometheus metrics for jobs and file operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobMetrics defines the metrics operations the orchestrator needs.
type JobMetrics interface {
	JobStarted(kind string)
	JobFinished(kind, status string, d time.Duration)
	JobPanicked(kind string)
	FileOpItems(op string, succeeded, failed int)
	ProgressSamples(n int)
}

// Jobs implements JobMetrics
type Jobs struct {
	Started        *prometheus.CounterVec
	Finished       *prometheus.CounterVec
	Panics         *prometheus.CounterVec
	Active         *prometheus.GaugeVec
	Duration       *prometheus.HistogramVec
	FileOpItemsVec *prometheus.CounterVec
	Samples        prometheus.Counter
}

const namespace = "sieve"

// New creates the job metrics and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Jobs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Jobs{
		Started: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of jobs started, by command",
		}, []string{"kind"}),
		Finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs finished, by command and status",
		}, []string{"kind", "status"}),
		Panics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_panics_total",
			Help:      "Total number of recovered job panics",
		}, []string{"kind"}),
		Active: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of jobs currently running",
		}, []string{"kind"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time taken by each job",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		}, []string{"kind"}),
		FileOpItemsVec: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fileop_items_total",
			Help:      "Items processed by bulk file operations, by result",
		}, []string{"op", "result"}),
		Samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_samples_total",
			Help:      "Progress samples forwarded to the UI",
		}),
	}
}

func (m *Jobs) JobStarted(kind string) {
	m.Started.WithLabelValues(kind).Inc()
	m.Active.WithLabelValues(kind).Inc()
}

func (m *Jobs) JobFinished(kind, status string, d time.Duration) {
	m.Finished.WithLabelValues(kind, status).Inc()
	m.Active.WithLabelValues(kind).Dec()
	m.Duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Jobs) JobPanicked(kind string) {
	m.Panics.WithLabelValues(kind).Inc()
}

func (m *Jobs) FileOpItems(op string, succeeded, failed int) {
	m.FileOpItemsVec.WithLabelValues(op, "success").Add(float64(succeeded))
	m.FileOpItemsVec.WithLabelValues(op, "error").Add(float64(failed))
}

func (m *Jobs) ProgressSamples(n int) {
	m.Samples.Add(float64(n))
}

// Nop discards every observation
type Nop struct{}

func (Nop) JobStarted(string) {}
func (Nop) JobFinished(string, string, time.Duration) {}
func (Nop) JobPanicked(string) {}
func (Nop) FileOpItems(string, int, int) {}
func (Nop) ProgressSamples(int) {}
