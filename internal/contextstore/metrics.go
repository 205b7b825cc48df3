package contextstore

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the shared context store.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	TokensSavedTotal prometheus.Counter
	BytesSavedTotal  prometheus.Counter
	ContextVersions  *prometheus.GaugeVec
	ContextSizeBytes *prometheus.GaugeVec
	ActiveContexts   prometheus.Gauge
	Subscribers      prometheus.Gauge
}

// NewMetrics creates and registers the store's Prometheus metrics.
//
// sync.Once guards registration so repeated construction (tests, multiple
// stores in one process) cannot panic with a duplicate collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contextstore_requests_total",
					Help: "Total number of context store operations",
				},
				[]string{"op"}, // "get", "update"
			),
			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "contextstore_cache_hits_total",
					Help: "Total number of reads served from an existing context",
				},
			),
			TokensSavedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "contextstore_tokens_saved_total",
					Help: "Estimated tokens saved by transmitting diffs instead of full payloads",
				},
			),
			BytesSavedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "contextstore_bytes_saved_total",
					Help: "Serialized bytes saved by transmitting diffs instead of full payloads",
				},
			),
			ContextVersions: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "contextstore_context_version",
					Help: "Current version per project context",
				},
				[]string{"project"},
			),
			ContextSizeBytes: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "contextstore_context_size_bytes",
					Help: "Serialized payload size per project context",
				},
				[]string{"project"},
			),
			ActiveContexts: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "contextstore_active_contexts",
					Help: "Number of live project contexts",
				},
			),
			Subscribers: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "contextstore_subscribers",
					Help: "Number of active diff subscribers",
				},
			),
		}
	})
	return globalMetrics
}
