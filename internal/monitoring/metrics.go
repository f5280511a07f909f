// internal/monitoring/metrics.go
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one run. A nil *Metrics is
// valid and records nothing, so components never need to check.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pagesFetched    *prometheus.CounterVec
	candidates      *prometheus.CounterVec
	images          *prometheus.CounterVec
	recordsStored   prometheus.Counter
	duplicates      prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	dealers         *prometheus.CounterVec
	dealersActive   prometheus.Gauge
}

// MetricsConfig configuration for metrics
type MetricsConfig struct {
	Namespace       string `json:"namespace"`
	Subsystem       string `json:"subsystem"`
	EnableGoMetrics bool   `json:"enable_go_metrics"`
}

// NewMetrics registers every collector on a private registry.
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "carscrapexter"
	}
	if config.Subsystem == "" {
		config.Subsystem = "pipeline"
	}

	reg := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)
	ns, sub := config.Namespace, config.Subsystem

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "requests_total",
			Help: "HTTP requests made, by host and status code (0 means no response)",
		}, []string{"host", "status_code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "pages_fetched_total",
			Help: "Documents fetched, by mode (raw or rendered) and kind (inventory or detail)",
		}, []string{"mode", "kind"}),
		candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "candidates_total",
			Help: "Listing candidates by outcome",
		}, []string{"outcome"}),
		images: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "images_total",
			Help: "Image downloads by outcome",
		}, []string{"outcome"}),
		recordsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "records_stored_total",
			Help: "Vehicle records written to the store",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "duplicates_total",
			Help: "Vehicle records suppressed as already seen",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "errors_total",
			Help: "Errors by category",
		}, []string{"kind"}),
		dealers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "dealers_total",
			Help: "Dealer units by outcome",
		}, []string{"outcome"}),
		dealersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "dealers_active",
			Help: "Dealer units currently running",
		}),
	}
}

// ObserveRequest records one HTTP exchange.
func (m *Metrics) ObserveRequest(host string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(host, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// PageFetched records a fetched document.
func (m *Metrics) PageFetched(mode, kind string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(mode, kind).Inc()
}

// CandidateOutcome records what happened to a listing candidate:
// discovered, accepted, deferred or rejected.
func (m *Metrics) CandidateOutcome(outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome).Inc()
}

// ImageOutcome records an image download: accepted, rejected or failed.
func (m *Metrics) ImageOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.images.WithLabelValues(outcome).Add(float64(n))
}

// RecordStored counts a stored vehicle.
func (m *Metrics) RecordStored() {
	if m == nil {
		return
	}
	m.recordsStored.Inc()
}

// Duplicate counts a suppressed vehicle.
func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// Error counts an error of the given category.
func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// DealerStarted and DealerFinished bracket one dealer unit.
func (m *Metrics) DealerStarted() {
	if m == nil {
		return
	}
	m.dealersActive.Inc()
}

func (m *Metrics) DealerFinished(outcome string) {
	if m == nil {
		return
	}
	m.dealersActive.Dec()
	m.dealers.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
