package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Delivery channels.
const (
	ChannelWebSocket = "websocket"
	ChannelREST      = "rest"
	ChannelWebVitals = "web-vitals"
)

// Collector records delivery outcomes in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	channels   map[string]*channel
	values     map[string]*valueDist
	reconnects int64
	connected  bool
	start      time.Time
	prom       *promMetrics
}

type channel struct {
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	dropped      int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByKind map[string]int64
}

// valueDist tracks the distribution of one metric field. Values are stored
// in thousandths so CLS scores and byte counts share one histogram layout.
type valueDist struct {
	hist  *hdrhistogram.Histogram
	count int64
	min   float64
	max   float64
	sum   float64
	last  float64
}

const valueScale = 1000

// ValueStats summarizes the values collected for one metric field.
type ValueStats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Last  float64 `json:"last"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// ChannelStats represents aggregated outcomes for one delivery channel.
type ChannelStats struct {
	Channel     string        `json:"channel"`
	Total       int64         `json:"total"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	Dropped     int64         `json:"dropped"`
	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P90Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms"`
	Errors        map[string]int `json:"errors,omitempty"`
}

// Stats represents aggregated agent telemetry.
type Stats struct {
	Channels        []ChannelStats        `json:"channels"`
	Values          map[string]ValueStats `json:"values,omitempty"`
	Emitted         map[string]int64      `json:"emitted,omitempty"`
	TotalEmissions  int64                 `json:"total_emissions"`
	Reconnects      int64                 `json:"ws_reconnects"`
	Connected       bool                  `json:"ws_connected"`
	Duration        time.Duration         `json:"-"`
	DurationMs      float64               `json:"duration_ms"`
	EmissionsPerSec float64               `json:"emissions_per_sec"`
}

// Channel returns the stats for name and whether it saw any traffic.
func (s Stats) Channel(name string) (ChannelStats, bool) {
	for _, ch := range s.Channels {
		if ch.Channel == name {
			return ch, true
		}
	}
	return ChannelStats{Channel: name}, false
}

func NewCollector() *Collector {
	return &Collector{
		channels: make(map[string]*channel),
		values:   make(map[string]*valueDist),
		start:    time.Now(),
	}
}

func newChannel() *channel {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &channel{
		hist:         hdrhistogram.New(1, 60_000_000, 3),
		errorsByKind: make(map[string]int64),
	}
}

func (c *Collector) channelLocked(name string) *channel {
	ch, ok := c.channels[name]
	if !ok {
		ch = newChannel()
		c.channels[name] = ch
	}
	return ch
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.start)
}

// RecordDelivery records one delivery attempt on a channel.
func (c *Collector) RecordDelivery(name string, latency time.Duration, err error) {
	c.mu.Lock()
	ch := c.channelLocked(name)

	if latency > 0 {
		us := latency.Microseconds()
		if us < ch.hist.LowestTrackableValue() {
			us = ch.hist.LowestTrackableValue()
		}
		if us > ch.hist.HighestTrackableValue() {
			us = ch.hist.HighestTrackableValue()
		}
		_ = ch.hist.RecordValue(us)
	}
	ch.sumLatency += latency

	if ch.minLatency == 0 || latency < ch.minLatency {
		ch.minLatency = latency
	}
	if latency > ch.maxLatency {
		ch.maxLatency = latency
	}

	if err == nil {
		ch.successes++
	} else {
		ch.failures++
		ch.errorsByKind[ClassifyError(err)]++
	}
	prom := c.prom
	c.mu.Unlock()

	prom.observeDelivery(name, latency, err)
}

// RecordDrop records a payload that never left the process.
func (c *Collector) RecordDrop(name string) {
	c.mu.Lock()
	c.channelLocked(name).dropped++
	prom := c.prom
	c.mu.Unlock()

	prom.observeDrop(name)
}

// RecordMetric records the populated fields of one collected metric record,
// keyed by field name.
func (c *Collector) RecordMetric(values map[string]float64) {
	c.mu.Lock()
	for field, v := range values {
		d, ok := c.values[field]
		if !ok {
			// Up to 1e12 units (a terabyte, or 31 years in ms) at 2 significant figures.
			d = &valueDist{hist: hdrhistogram.New(1, 1_000_000_000_000*valueScale, 2)}
			c.values[field] = d
		}
		d.record(v)
	}
	prom := c.prom
	c.mu.Unlock()

	prom.observeMetric(values)
}

func (d *valueDist) record(v float64) {
	if d.count == 0 || v < d.min {
		d.min = v
	}
	if d.count == 0 || v > d.max {
		d.max = v
	}
	d.count++
	d.sum += v
	d.last = v

	scaled := int64(math.Round(v * valueScale))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > d.hist.HighestTrackableValue() {
		scaled = d.hist.HighestTrackableValue()
	}
	_ = d.hist.RecordValue(scaled)
}

func (d *valueDist) stats() ValueStats {
	q := func(p float64) float64 {
		return float64(d.hist.ValueAtQuantile(p)) / valueScale
	}
	vs := ValueStats{
		Count: d.count,
		Min:   d.min,
		Max:   d.max,
		Last:  d.last,
		P50:   q(50),
		P75:   q(75),
		P90:   q(90),
		P95:   q(95),
		P99:   q(99),
	}
	if d.count > 0 {
		vs.Mean = d.sum / float64(d.count)
	}
	return vs
}

// RecordReconnect counts a scheduled WebSocket reconnection attempt.
func (c *Collector) RecordReconnect() {
	c.mu.Lock()
	c.reconnects++
	prom := c.prom
	c.mu.Unlock()

	prom.observeReconnect()
}

// SetConnected records the current WebSocket connection state.
func (c *Collector) SetConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	prom := c.prom
	c.mu.Unlock()

	prom.setConnected(connected)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Reconnects: c.reconnects,
		Connected:  c.connected,
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
	}

	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats.Channels = append(stats.Channels, c.channels[name].stats(name))
	}

	if len(c.values) > 0 {
		stats.Values = make(map[string]ValueStats, len(c.values))
		stats.Emitted = make(map[string]int64, len(c.values))
		for field, d := range c.values {
			stats.Values[field] = d.stats()
			stats.Emitted[field] = d.count
			stats.TotalEmissions += d.count
		}
	}
	if elapsed > 0 && stats.TotalEmissions > 0 {
		stats.EmissionsPerSec = float64(stats.TotalEmissions) / elapsed.Seconds()
	}
	return stats
}

func (ch *channel) stats(name string) ChannelStats {
	total := ch.successes + ch.failures
	stats := ChannelStats{
		Channel:    name,
		Total:      total,
		Successes:  ch.successes,
		Failures:   ch.failures,
		Dropped:    ch.dropped,
		MinLatency: ch.minLatency,
		MaxLatency: ch.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(ch.sumLatency) / total)
	}

	if ch.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(ch.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(ch.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(ch.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = float64(stats.MinLatency) / float64(time.Millisecond)
	stats.MaxLatencyMs = float64(stats.MaxLatency) / float64(time.Millisecond)
	stats.MeanLatencyMs = float64(stats.MeanLatency) / float64(time.Millisecond)
	stats.P50LatencyMs = float64(stats.P50Latency) / float64(time.Millisecond)
	stats.P90LatencyMs = float64(stats.P90Latency) / float64(time.Millisecond)
	stats.P99LatencyMs = float64(stats.P99Latency) / float64(time.Millisecond)

	if len(ch.errorsByKind) > 0 {
		stats.Errors = make(map[string]int, len(ch.errorsByKind))
		for k, v := range ch.errorsByKind {
			stats.Errors[k] = int(v)
		}
	}
	return stats
}

// ErrorBreakdown returns error type counts keyed by channel.
func (c *Collector) ErrorBreakdown() map[string]map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]map[string]int)
	for name, ch := range c.channels {
		if len(ch.errorsByKind) == 0 {
			continue
		}
		inner := make(map[string]int, len(ch.errorsByKind))
		for k, v := range ch.errorsByKind {
			inner[k] = int(v)
		}
		result[name] = inner
	}
	return result
}
