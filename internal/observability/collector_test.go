package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("prioris")

	c.Add(MetricCacheHits, 1)
	c.Add(MetricCacheHits, 2)
	c.Add(MetricCacheMisses, 1)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetCounter() != nil {
				values[f.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(3), values["prioris_"+MetricCacheHits])
	assert.Equal(t, float64(1), values["prioris_"+MetricCacheMisses])
}

func TestCollector_ObserveGauge(t *testing.T) {
	c := NewCollector("prioris")

	c.Observe(MetricSyncThroughput, 120.5)
	c.Observe(MetricSyncThroughput, 99.0) // gauges keep the latest sample

	count, err := testutil.GatherAndCount(c.Registry(), "prioris_"+MetricSyncThroughput)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollector_LatencyHistogram(t *testing.T) {
	c := NewCollector("prioris")

	c.Observe(MetricSyncLatencyMS, 12)
	c.Observe(MetricSyncLatencyMS, 250)

	count, err := testutil.GatherAndCount(c.Registry(), "prioris_"+MetricSyncLatencyMS)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, NopSink{}, OrNop(nil))

	c := NewCollector("prioris")
	assert.Same(t, c, OrNop(c))
}
