package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/perfmaster/agent/internal/perf"
	"github.com/perfmaster/agent/internal/timeline"
)

// LargestContentfulPaint reports the start time of the last LCP candidate in
// each batch. Later candidates supersede earlier ones downstream.
type LargestContentfulPaint struct {
	Timeline timeline.Timeline
}

func (s *LargestContentfulPaint) Name() string { return "lcp" }

func (s *LargestContentfulPaint) Start(emit Emit) (func(), error) {
	obs, err := s.Timeline.Observe(timeline.EntryLargestContentfulPaint, func(entries []timeline.Entry) {
		if len(entries) == 0 {
			return
		}
		last := entries[len(entries)-1]
		emit(perf.Metrics{LCP: perf.Float(last.StartTime)})
	})
	if err != nil {
		return nil, err
	}
	return obs.Disconnect, nil
}

// FirstInputDelay reports processingStart - startTime for every input entry.
type FirstInputDelay struct {
	Timeline timeline.Timeline
}

func (s *FirstInputDelay) Name() string { return "fid" }

func (s *FirstInputDelay) Start(emit Emit) (func(), error) {
	obs, err := s.Timeline.Observe(timeline.EntryFirstInput, func(entries []timeline.Entry) {
		for _, e := range entries {
			emit(perf.Metrics{FID: perf.Float(e.ProcessingStart - e.StartTime)})
		}
	})
	if err != nil {
		return nil, err
	}
	return obs.Disconnect, nil
}

// LayoutShift reports the cumulative layout shift score. The sum spans the
// source's lifetime and skips shifts caused by recent user input. Summing and
// emitting happen under one lock so emitted values never decrease, even when
// batches are recorded concurrently.
type LayoutShift struct {
	Timeline timeline.Timeline

	mu  sync.Mutex
	sum float64
}

func (s *LayoutShift) Name() string { return "cls" }

func (s *LayoutShift) Start(emit Emit) (func(), error) {
	obs, err := s.Timeline.Observe(timeline.EntryLayoutShift, func(entries []timeline.Entry) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range entries {
			if !e.HadRecentInput {
				s.sum += e.Value
			}
		}
		emit(perf.Metrics{CLS: perf.Float(s.sum)})
	})
	if err != nil {
		return nil, err
	}
	return obs.Disconnect, nil
}

// Navigation reports TTFB and FCP from the navigation entry once the page
// has loaded. It fires at most once.
type Navigation struct {
	Timeline timeline.Timeline
}

func (s *Navigation) Name() string { return "navigation" }

func (s *Navigation) Start(emit Emit) (func(), error) {
	var stopped atomic.Bool
	var once sync.Once
	cancel := s.Timeline.OnLoad(func() {
		// The load callback may run before the navigation entry is final.
		go func() {
			if stopped.Load() {
				return
			}
			entries := s.Timeline.EntriesByType(timeline.EntryNavigation)
			if len(entries) == 0 {
				return
			}
			nav := entries[0]
			once.Do(func() {
				emit(perf.Metrics{
					TTFB: perf.Float(nav.ResponseStart - nav.RequestStart),
					FCP:  perf.Float(nav.ResponseEnd - nav.RequestStart),
				})
			})
		}()
	})
	return func() {
		stopped.Store(true)
		cancel()
	}, nil
}

// Resource reports the transfer size and request count of each batch of
// resource entries. Values are per batch, not cumulative.
type Resource struct {
	Timeline timeline.Timeline
}

func (s *Resource) Name() string { return "resource" }

func (s *Resource) Start(emit Emit) (func(), error) {
	obs, err := s.Timeline.Observe(timeline.EntryResource, func(entries []timeline.Entry) {
		var total int64
		for _, e := range entries {
			total += e.TransferSize
		}
		emit(perf.Metrics{
			BundleSize:      perf.Int(total),
			NetworkRequests: perf.Int(int64(len(entries))),
		})
	})
	if err != nil {
		return nil, err
	}
	return obs.Disconnect, nil
}

// Memory samples heap usage on a fixed interval.
type Memory struct {
	Read     MemoryReader
	Interval time.Duration
}

func (s *Memory) Name() string { return "memory" }

func (s *Memory) Start(emit Emit) (func(), error) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultMemoryInterval
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-ticker.C:
				emit(perf.Metrics{MemoryUsage: perf.Int(s.Read())})
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
			<-finished
		})
	}, nil
}
