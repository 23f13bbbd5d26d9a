package cache

import "github.com/prometheus/client_golang/prometheus"

func (c *Cache) count(vec *prometheus.CounterVec, id string) {
	if vec != nil {
		vec.WithLabelValues(id).Inc()
	}
}

func (c *Cache) hits() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.CacheHits
}

func (c *Cache) fetches() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.CacheFetches
}

func (c *Cache) fetchErrors() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.CacheFetchErrors
}

func (c *Cache) degraded() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.CacheDegraded
}

func (c *Cache) invalidations() *prometheus.CounterVec {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.CacheInvalidations
}
