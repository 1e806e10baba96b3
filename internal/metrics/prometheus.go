package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type promMetrics struct {
	deliveries *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	emitted    *prometheus.CounterVec
	lastValue  *prometheus.GaugeVec
	reconnects prometheus.Counter
	connected  prometheus.Gauge
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmaster_deliveries_total",
			Help: "Deliveries attempted per channel and outcome",
		}, []string{"channel", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmaster_delivery_errors_total",
			Help: "Failed deliveries per channel and error kind",
		}, []string{"channel", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfmaster_delivery_duration_seconds",
			Help:    "Time taken to hand a payload to the backend",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"channel"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfmaster_metrics_emitted_total",
			Help: "Collected metric values per field",
		}, []string{"field"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perfmaster_metric_last_value",
			Help: "Most recent collected value per field",
		}, []string{"field"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perfmaster_ws_reconnects_total",
			Help: "WebSocket reconnection attempts scheduled",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perfmaster_ws_connected",
			Help: "1 while the WebSocket connection is open",
		}),
	}
}

func (p *promMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{p.deliveries, p.errors, p.latency, p.emitted, p.lastValue, p.reconnects, p.connected}
}

// Register exposes the collector's counters on reg. Values recorded before
// registration are not replayed.
func (c *Collector) Register(reg prometheus.Registerer) error {
	p := newPromMetrics()
	for _, col := range p.collectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.prom = p
	connected := c.connected
	c.mu.Unlock()
	p.setConnected(connected)
	return nil
}

func (p *promMetrics) observeDelivery(channel string, latency time.Duration, err error) {
	if p == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		p.errors.WithLabelValues(channel, ClassifyError(err)).Inc()
	}
	p.deliveries.WithLabelValues(channel, outcome).Inc()
	if latency > 0 {
		p.latency.WithLabelValues(channel).Observe(latency.Seconds())
	}
}

func (p *promMetrics) observeDrop(channel string) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(channel, "dropped").Inc()
}

func (p *promMetrics) observeMetric(values map[string]float64) {
	if p == nil {
		return
	}
	for field, v := range values {
		p.emitted.WithLabelValues(field).Inc()
		p.lastValue.WithLabelValues(field).Set(v)
	}
}

func (p *promMetrics) observeReconnect() {
	if p == nil {
		return
	}
	p.reconnects.Inc()
}

func (p *promMetrics) setConnected(connected bool) {
	if p == nil {
		return
	}
	if connected {
		p.connected.Set(1)
	} else {
		p.connected.Set(0)
	}
}
