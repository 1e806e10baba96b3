package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfmaster/agent/internal/logging"
	"github.com/perfmaster/agent/internal/perf"
)

// Collector runs a set of metric sources and forwards their emissions to a
// callback.
type Collector struct {
	env     Env
	sources []MetricSource
	log     logrus.FieldLogger

	mu     sync.Mutex
	stops  []func()
	active []string

	// generation changes on every Start and Stop; emissions carrying a stale
	// generation are discarded.
	generation atomic.Uint64
}

// Option customizes a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for skipped sources.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Collector) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSources replaces the feature-detected source set.
func WithSources(sources ...MetricSource) Option {
	return func(c *Collector) {
		c.sources = sources
	}
}

// New creates a Collector for env. Sources are detected from env unless
// WithSources is given.
func New(env Env, opts ...Option) *Collector {
	if env.Now == nil {
		env.Now = time.Now
	}
	c := &Collector{
		env: env,
		log: logrus.StandardLogger(),
	}
	c.sources = Sources(env)
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.Component(c.log, "collector")
	return c
}

// Start begins collecting and invokes callback once per observation. A
// source that fails to start is skipped. Calling Start on a running
// collector does nothing.
func (c *Collector) Start(callback func(perf.Metrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stops != nil {
		return
	}
	gen := c.generation.Add(1)
	emit := func(m perf.Metrics) {
		if c.generation.Load() != gen {
			return
		}
		m.Timestamp = c.env.Now().UnixMilli()
		m.PageURL = c.env.PageURL
		m.UserAgent = c.env.UserAgent
		callback(m)
	}

	c.stops = make([]func(), 0, len(c.sources))
	c.active = c.active[:0]
	for _, src := range c.sources {
		stop, err := src.Start(emit)
		if err != nil {
			c.log.WithError(err).WithField("source", src.Name()).Debug("metric source unavailable, skipping")
			continue
		}
		c.stops = append(c.stops, stop)
		c.active = append(c.active, src.Name())
	}
	c.log.WithField("sources", c.active).Debug("collecting")
}

// Stop stops every source. Emissions in flight are discarded. Stop is
// idempotent and safe to call on a collector that never started.
func (c *Collector) Stop() {
	c.mu.Lock()
	stops := c.stops
	c.stops = nil
	c.active = nil
	c.generation.Add(1)
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// Active returns the names of the running sources.
func (c *Collector) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.active...)
}
