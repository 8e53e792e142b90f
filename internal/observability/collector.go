package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements MetricsSink on a private Prometheus registry.
// Observations land in histograms or gauges depending on the sample name;
// Add feeds counters. Unknown names are registered lazily as gauges so the
// engine can introduce samples without touching this file.
type Collector struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram

	namespace string
}

// NewCollector creates a collector with its own registry under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
		namespace:  namespace,
	}

	// Latency gets histogram buckets suited to store round-trips.
	c.histograms[MetricSyncLatencyMS] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MetricSyncLatencyMS,
		Help:      "End-to-end migration latency in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})
	c.registry.MustRegister(c.histograms[MetricSyncLatencyMS])

	return c
}

var _ MetricsSink = (*Collector)(nil)

// Registry exposes the underlying registry so callers can mount an exporter.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records a sample into the metric registered for name, creating a
// gauge on first use.
func (c *Collector) Observe(name string, value float64) {
	c.mu.Lock()
	if h, ok := c.histograms[name]; ok {
		c.mu.Unlock()
		h.Observe(value)
		return
	}
	g, ok := c.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      "Engine sample " + name,
		})
		c.registry.MustRegister(g)
		c.gauges[name] = g
	}
	c.mu.Unlock()
	g.Set(value)
}

// Add increments the counter registered for name, creating it on first use.
func (c *Collector) Add(name string, value float64) {
	c.mu.Lock()
	ctr, ok := c.counters[name]
	if !ok {
		ctr = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      name,
			Help:      "Engine counter " + name,
		})
		c.registry.MustRegister(ctr)
		c.counters[name] = ctr
	}
	c.mu.Unlock()
	ctr.Add(value)
}
