package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/serviceerr"
)

// Transaction attempt outcomes recorded by Metrics.
const (
	OutcomeCommitted = "committed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// StatsSource is a cache whose counters can be exported.
type StatsSource interface {
	Stats() cache.Stats
}

// Metrics collects service telemetry into its own Prometheus registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	errors   *prometheus.CounterVec
	caches   *cacheCollector
}

// NewMetrics creates a Metrics collector. An empty namespace defaults to
// "service".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "service"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "attempts_total",
				Help:      "Transaction attempts by outcome",
			},
			[]string{"service", "outcome"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Classified service errors by kind",
			},
			[]string{"service", "kind"},
		),
		caches: newCacheCollector(namespace),
	}

	m.registry.MustRegister(m.attempts, m.errors, m.caches)
	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackCache exports the counters of src under the given service name.
func (m *Metrics) TrackCache(service string, src StatsSource) {
	if m == nil || src == nil {
		return
	}
	m.caches.sources.Store(service, src)
}

// UntrackCache stops exporting the cache of service.
func (m *Metrics) UntrackCache(service string) {
	if m == nil {
		return
	}
	m.caches.sources.Delete(service)
}

// RecordAttempt counts one transaction attempt.
func (m *Metrics) RecordAttempt(service, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(service, outcome).Inc()
}

// RecordError counts one classified error.
func (m *Metrics) RecordError(service string, kind serviceerr.Kind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(service, string(kind)).Inc()
}

// cacheCollector reads cache stats at scrape time.
type cacheCollector struct {
	sources *xsync.MapOf[string, StatsSource]

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
}

func newCacheCollector(namespace string) *cacheCollector {
	labels := []string{"service"}
	return &cacheCollector{
		sources:   xsync.NewMapOf[string, StatsSource](),
		hits:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "hits_total"), "Cache hits", labels, nil),
		misses:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "misses_total"), "Cache misses", labels, nil),
		evictions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "evictions_total"), "Entries evicted or cleared", labels, nil),
		size:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "entries"), "Entries currently cached", labels, nil),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.size
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	c.sources.Range(func(service string, src StatsSource) bool {
		s := src.Stats()
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), service)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), service)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), service)
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size), service)
		return true
	})
}
