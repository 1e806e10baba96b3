package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/perfmaster/agent/internal/metrics"
)

// StatsSource is the part of metrics.Collector the reporter reads.
type StatsSource interface {
	Stats(elapsed time.Duration) metrics.Stats
	Elapsed() time.Duration
}

// ProgressReporter rewrites a single status line while the agent runs.
type ProgressReporter struct {
	source   StatsSource
	interval time.Duration
	writer   io.Writer

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewProgressReporter creates a reporter that refreshes every interval.
func NewProgressReporter(source StatsSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		writer:   writer,
	}
}

// Start begins refreshing in the background. A second Start while running
// is a no-op.
func (p *ProgressReporter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})
	go p.run(p.stop, p.stopped)
}

// Stop halts refreshing after writing one final line.
func (p *ProgressReporter) Stop() {
	p.mu.Lock()
	stop, stopped := p.stop, p.stopped
	p.stop, p.stopped = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (p *ProgressReporter) run(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.render()
		case <-stop:
			p.render()
			return
		}
	}
}

func (p *ProgressReporter) render() {
	fmt.Fprint(p.writer, progressLine(p.source.Stats(p.source.Elapsed())))
}

// vitals shown on the status line when collected.
var progressVitals = []string{"lcp", "fid", "cls"}

func progressLine(stats metrics.Stats) string {
	state := "down"
	if stats.Connected {
		state = "up"
	}
	ws, _ := stats.Channel(metrics.ChannelWebSocket)
	rest, _ := stats.Channel(metrics.ChannelREST)

	var b strings.Builder
	fmt.Fprintf(&b, "\rMetrics: %d | WS %s: sent %d, dropped %d | REST: ok %d, failed %d, P99 %.1fms",
		stats.TotalEmissions, state, ws.Successes, ws.Dropped, rest.Successes, rest.Failures, rest.P99LatencyMs)
	for _, name := range progressVitals {
		if v, ok := stats.Values[name]; ok && v.Count > 0 {
			fmt.Fprintf(&b, " | %s %s", strings.ToUpper(name), formatValue(v.Last))
		}
	}
	return b.String()
}
