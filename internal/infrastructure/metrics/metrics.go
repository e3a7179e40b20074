package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pricescout/backend/internal/domain"
)

// PrometheusMetrics records acquisition and HTTP metrics on its own registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Providers
	ProviderAttempts *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	ProviderSkips    *prometheus.CounterVec

	// Cache and extraction
	CacheLookups      *prometheus.CounterVec
	ObservationsFound *prometheus.CounterVec
	Searches          *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)

func NewMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		ProviderAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_provider_attempts_total",
				Help: "Provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricescout_provider_attempt_duration_seconds",
				Help:    "Time taken by one provider attempt",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider"},
		),
		ProviderSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_provider_skipped_total",
				Help: "Providers skipped without an attempt",
			},
			[]string{"provider", "reason"},
		), // reason: "rate_limited" or "circuit_open"
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_cache_lookups_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		ObservationsFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_observations_extracted_total",
				Help: "Price observations extracted by strategy",
			},
			[]string{"strategy"},
		),
		Searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_searches_total",
				Help: "Completed searches by source",
			},
			[]string{"source", "exhausted"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricescout_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "pricescout_http_request_duration_seconds",
				Help: "HTTP request latency",
			},
			[]string{"method", "route"},
		),
	}
}

func (m *PrometheusMetrics) ProviderAttempt(provider, outcome string, duration time.Duration) {
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ProviderSkipped(provider, reason string) {
	m.ProviderSkips.WithLabelValues(provider, reason).Inc()
}

func (m *PrometheusMetrics) CacheLookup(outcome string) {
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) ObservationsExtracted(strategy domain.Strategy, count int) {
	if count <= 0 {
		return
	}
	m.ObservationsFound.WithLabelValues(string(strategy)).Add(float64(count))
}

func (m *PrometheusMetrics) SearchCompleted(source string, exhausted bool) {
	m.Searches.WithLabelValues(source, strconv.FormatBool(exhausted)).Inc()
}

// HTTPRequest records one served request; route is the matched pattern, not the raw path
func (m *PrometheusMetrics) HTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
