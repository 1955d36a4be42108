package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsSubsystem = "readings"

// Metrics holds the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	completed   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	retries     prometheus.Counter
	duration    *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	swept       prometheus.Counter
	stale       prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "jobs_completed_total",
			Help:      "Reading jobs that reached DONE",
			Subsystem: metricsSubsystem,
		}, []string{"kind", "model_version"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "jobs_failed_total",
			Help:      "Reading jobs that reached FAILED",
			Subsystem: metricsSubsystem,
		}, []string{"kind", "reason"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "fallback_total",
			Help:      "Readings produced by the local fallback generator",
			Subsystem: metricsSubsystem,
		}, []string{"kind", "reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "completion_retries_total",
			Help:      "Rate-limited completion calls that were retried",
			Subsystem: metricsSubsystem,
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "job_duration_seconds",
			Help:      "Time from claim to terminal state",
			Subsystem: metricsSubsystem,
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind", "status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "jobs_submitted_total",
			Help:      "Reading jobs accepted for processing",
			Subsystem: metricsSubsystem,
		}, []string{"kind"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "jobs_swept_total",
			Help:      "Expired reading jobs removed by the retention sweep",
			Subsystem: metricsSubsystem,
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "jobs_stale_total",
			Help:      "PROCESSING jobs failed by the sweep after their worker went silent",
			Subsystem: metricsSubsystem,
		}),
	}
	m.registry.MustRegister(
		m.completed, m.failed, m.fallbacks, m.retries, m.duration, m.submissions, m.swept, m.stale,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobCompleted(kind, modelVersion string, took time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(kind, modelVersion).Inc()
	m.duration.WithLabelValues(kind, "done").Observe(took.Seconds())
}

func (m *Metrics) JobFailed(kind, reason string, took time.Duration) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(kind, reason).Inc()
	m.duration.WithLabelValues(kind, "failed").Observe(took.Seconds())
}

func (m *Metrics) Fallback(kind, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Submitted(kind string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Metrics) Stale(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stale.Add(float64(n))
}
