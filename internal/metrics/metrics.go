// Package metrics exposes worker counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridrunner"

var jobBuckets = []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 57600}

// Metrics groups all worker metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Tasks        *prometheus.CounterVec
	JobDuration  prometheus.Histogram
	QueueRetries *prometheus.CounterVec
	CurrentRow   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks handled by this worker, by outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of successful training runs.",
			Buckets:   jobBuckets,
		}),
		QueueRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_retries_total",
			Help:      "Queue calls retried after rate limiting, by operation.",
		}, []string{"op"}),
		CurrentRow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_row",
			Help:      "Row being processed, 0 when idle.",
		}),
	}

	m.registry.MustRegister(
		m.Tasks,
		m.JobDuration,
		m.QueueRetries,
		m.CurrentRow,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TaskFinished(outcome string) {
	m.Tasks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobFinished(d time.Duration) {
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) RowStarted(row int) {
	m.CurrentRow.Set(float64(row))
}

// QueueRetried matches queue.RetryOptions.OnRetry.
func (m *Metrics) QueueRetried(op string, _ int, _ time.Duration) {
	m.QueueRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
