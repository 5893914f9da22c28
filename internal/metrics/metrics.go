package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
	CacheErr  = "error"
)

// Provider fetch outcomes
const (
	ProviderSuccess  = "success"
	ProviderNotFound = "not_found"
	ProviderFailure  = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheLookupsTotal   *prometheus.CounterVec
	CacheStoresTotal    *prometheus.CounterVec
	ProviderFetchTotal  *prometheus.CounterVec
	ProviderFetchSecond *prometheus.HistogramVec
}

// New registers all collectors on a private registry, so several instances can coexist in tests
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_cache_lookups_total",
				Help: "Cache lookups by storage backend and result",
			},
			[]string{"backend", "result"},
		),

		CacheStoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_cache_stores_total",
				Help: "Cache writes by storage backend and result",
			},
			[]string{"backend", "result"},
		),

		ProviderFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_provider_fetches_total",
				Help: "Upstream rate fetches by outcome",
			},
			[]string{"outcome"},
		),

		ProviderFetchSecond: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_provider_fetch_duration_seconds",
				Help:    "Upstream rate fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
