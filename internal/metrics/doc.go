// Package metrics provides real-time metrics collection for the proxy.
//
// It uses a channel-based event pipeline to asynchronously collect, per
// Bot API method:
//   - Request counts
//   - Upstream response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//
// and, for the upstream as a whole, error counts by type, the health probe
// result and the circuit breaker state.
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Emit never blocks: when the buffer is full the
// event is dropped. API methods come from client supplied paths, so the
// number of distinct series is capped and overflow is counted as "other".
//
// Example usage:
//
//	exporter := metrics.NewExporter("tgproxy")
//	collector := metrics.NewCollector(1000, 256, exporter, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		APIMethod:  "sendMessage",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("https://api.telegram.org")
//
// When an Exporter is attached every processed event is mirrored into
// Prometheus counters, histograms and gauges served by Exporter.Handler.
package metrics
