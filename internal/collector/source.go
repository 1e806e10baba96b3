package collector

import (
	"runtime"
	"time"

	"github.com/perfmaster/agent/internal/perf"
	"github.com/perfmaster/agent/internal/timeline"
)

// DefaultMemoryInterval is how often the memory source samples heap usage.
const DefaultMemoryInterval = 30 * time.Second

// Emit receives a partial metric record from a source.
type Emit func(perf.Metrics)

// MetricSource observes one signal family.
type MetricSource interface {
	Name() string
	// Start begins observing and returns a func that stops it. The stop func
	// must be safe to call more than once.
	Start(emit Emit) (stop func(), err error)
}

// MemoryReader reports current heap usage in bytes.
type MemoryReader func() int64

// RuntimeMemory reads the Go runtime's live heap size.
func RuntimeMemory() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// Env describes the host facilities available to the collector.
type Env struct {
	Timeline       timeline.Timeline // nil when the host has no performance timeline
	Memory         MemoryReader      // nil when heap usage cannot be read
	MemoryInterval time.Duration
	PageURL        string
	UserAgent      string
	Now            func() time.Time
}

// Sources returns the sources whose facilities exist in env.
func Sources(env Env) []MetricSource {
	var sources []MetricSource
	if tl := env.Timeline; tl != nil {
		if tl.Supports(timeline.EntryLargestContentfulPaint) {
			sources = append(sources, &LargestContentfulPaint{Timeline: tl})
		}
		if tl.Supports(timeline.EntryFirstInput) {
			sources = append(sources, &FirstInputDelay{Timeline: tl})
		}
		if tl.Supports(timeline.EntryLayoutShift) {
			sources = append(sources, &LayoutShift{Timeline: tl})
		}
		if tl.Supports(timeline.EntryNavigation) {
			sources = append(sources, &Navigation{Timeline: tl})
		}
		if tl.Supports(timeline.EntryResource) {
			sources = append(sources, &Resource{Timeline: tl})
		}
	}
	if env.Memory != nil {
		sources = append(sources, &Memory{Read: env.Memory, Interval: env.MemoryInterval})
	}
	return sources
}
