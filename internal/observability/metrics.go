package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the client's Prometheus metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	// Cache metrics, labeled by module id.
	CacheHits          *prometheus.CounterVec
	CacheFetches       *prometheus.CounterVec
	CacheFetchErrors   *prometheus.CounterVec
	CacheDegraded      *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec

	// Dispatcher metrics.
	Actions *prometheus.CounterVec
}

// NewCollector creates a collector whose metric names share namespace.
func NewCollector(namespace string) *Collector {
	module := []string{"module"}
	counter := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, labels)
	}

	c := &Collector{
		registry:           prometheus.NewRegistry(),
		CacheHits:          counter("hits_total", "Fresh cache hits served without a request.", module),
		CacheFetches:       counter("fetches_total", "Fragment fetches issued by the cache.", module),
		CacheFetchErrors:   counter("fetch_errors_total", "Fragment fetches that failed.", module),
		CacheDegraded:      counter("degraded_total", "Stale entries served after a failed fetch.", module),
		CacheInvalidations: counter("invalidations_total", "Entries removed by explicit invalidation.", module),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "actions_total",
			Help:      "Dispatched actions by name and outcome.",
		}, []string{"action", "outcome"}),
	}

	c.registry.MustRegister(
		c.CacheHits,
		c.CacheFetches,
		c.CacheFetchErrors,
		c.CacheDegraded,
		c.CacheInvalidations,
		c.Actions,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
