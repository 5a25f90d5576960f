// Package metrics holds the Prometheus collectors scraped from /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenantrag"

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Metrics holds Prometheus collectors for stores and the registry.
//
// Exposed series:
//   - tenantrag_ingest_chunks_total{domain,mode}
//   - tenantrag_search_total{mode,outcome}
//   - tenantrag_search_duration_seconds{mode}
//   - tenantrag_persist_duration_seconds
//   - tenantrag_persist_failures_total
//   - tenantrag_registry_lookups_total{result}
//   - tenantrag_registry_open_stores
//   - tenantrag_fanout_domains
type Metrics struct {
	IngestChunks    *prometheus.CounterVec
	Searches        *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	RegistryLookups *prometheus.CounterVec
	OpenStores      prometheus.Gauge
	FanOutDomains   prometheus.Histogram
}

// Default returns collectors registered once on the default registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestChunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks written to tenant stores.",
		}, []string{"domain", "mode"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Searches served by tenant stores.",
		}, []string{"mode", "outcome"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency including query embedding.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"mode"}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Time to write and publish one store generation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Store generations that failed to persist and were rolled back.",
		}),
		RegistryLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_lookups_total",
			Help:      "Registry resolutions by result (hit, miss, error).",
		}, []string{"result"}),
		OpenStores: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_open_stores",
			Help:      "Tenant stores currently cached by the registry.",
		}),
		FanOutDomains: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_domains",
			Help:      "Domains searched per fan-out query.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// ObserveSearch records one search outcome and its latency.
func (m *Metrics) ObserveSearch(mode string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Searches.WithLabelValues(mode, outcome).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObservePersist records one persist attempt.
func (m *Metrics) ObservePersist(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.PersistFailures.Inc()
		return
	}
	m.PersistDuration.Observe(elapsed.Seconds())
}

// AddIngested counts chunks written in one ingest.
func (m *Metrics) AddIngested(domain, mode string, n int) {
	if m == nil {
		return
	}
	m.IngestChunks.WithLabelValues(domain, mode).Add(float64(n))
}

// Lookup counts one registry resolution.
func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.RegistryLookups.WithLabelValues(result).Inc()
}
