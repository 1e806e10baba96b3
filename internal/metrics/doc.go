// Package metrics records how the agent's own deliveries fare.
//
// Every metric record, event, and web-vital the agent produces is handed to
// one or more delivery channels. The [Collector] aggregates the outcome per
// channel:
//
//	collector := metrics.NewCollector()
//
//	collector.RecordDelivery(metrics.ChannelREST, latency, err)
//	collector.RecordDrop(metrics.ChannelWebSocket)
//	collector.RecordMetric(m.Values())
//
//	stats := collector.Stats(elapsed)
//
// Delivery latencies and collected metric values are kept in HDR
// histograms, so percentiles stay accurate without retaining samples.
//
// # Prometheus
//
// [Collector.Register] mirrors the same counters onto a Prometheus registry
// for scraping while the agent runs.
//
// # Thread Safety
//
// All Collector methods are safe for concurrent use.
package metrics
