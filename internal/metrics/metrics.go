// Package metrics exposes Prometheus collectors for the pipeline and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finsight"

// Metrics owns a registry with every collector the service reports.
// It satisfies insight.StageRecorder and analysis.JobRecorder.
type Metrics struct {
	registry    *prometheus.Registry
	stages      *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_stage_total",
			Help:      "Insight extraction stages partitioned by stage and decode outcome.",
		}, []string{"stage", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Executed analysis jobs partitioned by terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time from claim to terminal status.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests partitioned by status code, method and route.",
		}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent on the request partitioned by status code, method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stages, m.jobs, m.jobDuration, m.requests, m.latency,
	)
	return m
}

// ObserveStage counts one insight stage outcome.
func (m *Metrics) ObserveStage(stage, outcome string) {
	m.stages.WithLabelValues(stage, outcome).Inc()
}

// ObserveJob counts one execution and its duration.
func (m *Metrics) ObserveJob(status models.JobStatus, elapsed time.Duration) {
	m.jobs.WithLabelValues(string(status)).Inc()
	m.jobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// RegisterQueueDepth reports fn as the number of pending queue tasks on every scrape.
func (m *Metrics) RegisterQueueDepth(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending_tasks",
		Help:      "Tasks waiting in the analysis queue.",
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
