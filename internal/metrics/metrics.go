// Package metrics exposes prometheus counters for the caching and batching core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rpcdrift"

// Multicall outcomes
const (
	MulticallOK       = "ok"
	MulticallFailed   = "failed"
	MulticallFallback = "fallback"
)

// Metrics holds the collectors of one client
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheErrors    *prometheus.CounterVec
	BatchSize      prometheus.Histogram
	DirectCalls    *prometheus.CounterVec
	Multicalls     *prometheus.CounterVec
	CallFailures   *prometheus.CounterVec
	AdapterLatency *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of client cache hits",
			},
			[]string{"kind"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of client cache misses",
			},
			[]string{"kind"},
		),
		CacheErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of store failures",
			},
			[]string{"operation"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of requests per processed batch",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
		),
		DirectCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "direct_calls_total",
				Help:      "Total number of calls forwarded without aggregation",
			},
			[]string{"method"},
		),
		Multicalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "multicalls_total",
				Help:      "Total number of aggregated calls by outcome",
			},
			[]string{"result"},
		),
		CallFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_failures_total",
				Help:      "Total number of failed calls by method",
			},
			[]string{"method"},
		),
		AdapterLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "adapter_duration_seconds",
				Help:      "Duration of adapter round trips",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordCacheHit records a cache hit for a key kind
func (m *Metrics) RecordCacheHit(kind string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for a key kind
func (m *Metrics) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(kind).Inc()
}

// RecordCacheError records a failed store operation
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(operation).Inc()
}

// RecordBatch records the size of a processed batch
func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// RecordDirectCall records a call sent to the adapter on its own
func (m *Metrics) RecordDirectCall(method string) {
	if m == nil {
		return
	}
	m.DirectCalls.WithLabelValues(method).Inc()
}

// RecordMulticall records an aggregated call outcome
func (m *Metrics) RecordMulticall(result string) {
	if m == nil {
		return
	}
	m.Multicalls.WithLabelValues(result).Inc()
}

// RecordCallFailure records a call that settled with an error
func (m *Metrics) RecordCallFailure(method string) {
	if m == nil {
		return
	}
	m.CallFailures.WithLabelValues(method).Inc()
}

// TimeAdapterCall returns a function that observes the elapsed adapter time
func (m *Metrics) TimeAdapterCall(method string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.AdapterLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
