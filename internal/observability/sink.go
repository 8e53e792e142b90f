// Package observability defines the metrics sink the engine emits named
// numeric samples to, plus a Prometheus-backed implementation. The sink is an
// optional collaborator: a missing sink never affects engine correctness.
package observability

// Sample names emitted by the engine.
const (
	MetricSyncLatencyMS      = "sync_latency_ms"
	MetricSyncErrorRate      = "sync_error_rate"
	MetricSyncThroughput     = "sync_throughput_items_per_sec"
	MetricSyncConflicts      = "sync_conflicts_total"
	MetricCacheHits          = "cache_hits_total"
	MetricCacheMisses        = "cache_misses_total"
	MetricCacheEvictions     = "cache_evictions_total"
	MetricQueueFlushes       = "write_queue_flushes_total"
	MetricQueueFlushFailures = "write_queue_flush_failures_total"
	MetricBreakerOpenEvents  = "breaker_open_events_total"
	MetricTasksRetried       = "sync_tasks_retried_total"
)

// MetricsSink receives named numeric samples. Implementations must be safe
// for concurrent use.
type MetricsSink interface {
	// Observe records a point-in-time sample such as a latency or a rate.
	Observe(name string, value float64)

	// Add increments a monotonic counter by value.
	Add(name string, value float64)
}

// NopSink discards every sample. Used whenever the caller injects no sink.
type NopSink struct{}

func (NopSink) Observe(string, float64) {}
func (NopSink) Add(string, float64)     {}

// OrNop returns sink, or a NopSink when sink is nil.
func OrNop(sink MetricsSink) MetricsSink {
	if sink == nil {
		return NopSink{}
	}
	return sink
}
