// Package metrics registers the Prometheus instrumentation shared by the
// gateway and resolution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one process. Collectors are registered
// on construction, so create at most one per registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	BlocksTotal     *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CircuitOpen     *prometheus.GaugeVec
	ResultsTotal    *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
	FSBOListings    *prometheus.CounterVec
}

// New creates and registers the collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentfinder_gateway_requests_total",
			Help: "Gateway requests by source and outcome",
		}, []string{"source", "outcome"}),
		BlocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentfinder_gateway_blocks_total",
			Help: "Blocked responses by source and kind (403, 429, captcha)",
		}, []string{"source", "kind"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentfinder_gateway_retries_total",
			Help: "Transport-level retries by source",
		}, []string{"source"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentfinder_gateway_request_duration_seconds",
			Help:    "Gateway request latency by source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentfinder_gateway_circuit_open",
			Help: "1 when a source circuit breaker is open",
		}, []string{"source"}),
		ResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentfinder_resolution_results_total",
			Help: "Resolved rows by final status",
		}, []string{"status"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentfinder_cache_hits_total",
			Help: "Lookups served from the local cache",
		}),
		FSBOListings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentfinder_fsbo_listings_total",
			Help: "FSBO listings collected by source",
		}, []string{"source"}),
	}
}

// NewDefault registers on the default Prometheus registry
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
