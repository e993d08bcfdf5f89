package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ImagesProcessed     *prometheus.CounterVec
	AIRequestsTotal     *prometheus.CounterVec
	AIRequestDuration   prometheus.Histogram
	BreakerOpenedTotal  prometheus.Counter
	BulkChunksTotal     prometheus.Counter
}

// New registers the application metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ImagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alttext_images_processed_total",
				Help: "Images that went through an alt text decision.",
			},
			[]string{"source", "status"}, // status: success, skipped, error
		),
		AIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alttext_ai_requests_total",
				Help: "Outbound AI provider calls by outcome.",
			},
			[]string{"outcome"}, // ok, provider_failure, circuit_open
		),
		AIRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alttext_ai_request_duration_seconds",
				Help:    "Duration of outbound AI provider calls including the retry.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
		),
		BreakerOpenedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "alttext_breaker_opened_total",
				Help: "Times the AI circuit breaker transitioned to open.",
			},
		),
		BulkChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "alttext_bulk_chunks_total",
				Help: "Bulk job chunks processed.",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

func (m *Metrics) IncImage(source, status string) {
	if m == nil {
		return
	}
	m.ImagesProcessed.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ObserveAI(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AIRequestsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.AIRequestDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncBreakerOpened() {
	if m == nil {
		return
	}
	m.BreakerOpenedTotal.Inc()
}

func (m *Metrics) IncBulkChunk() {
	if m == nil {
		return
	}
	m.BulkChunksTotal.Inc()
}
