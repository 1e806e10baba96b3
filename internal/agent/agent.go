package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfmaster/agent/internal/collector"
	"github.com/perfmaster/agent/internal/config"
	"github.com/perfmaster/agent/internal/httpclient"
	"github.com/perfmaster/agent/internal/logging"
	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/perf"
	"github.com/perfmaster/agent/internal/websocket"
)

// Version is reported in the default user agent.
var Version = "dev"

// ErrInvalidConfig is returned by New when required settings are missing.
var ErrInvalidConfig = errors.New("invalid agent configuration")

// Agent reports performance metrics, events, and errors to the backend.
type Agent struct {
	cfg       config.Config
	log       logrus.FieldLogger
	api       *httpclient.APIClient
	ws        *websocket.Client
	collector *collector.Collector
	stats     *metrics.Collector
	now       func() time.Time

	mu      sync.Mutex
	running bool

	flightMu sync.Mutex
	inflight int
	drained  chan struct{} // closed when inflight drops to zero
}

// New builds an Agent from cfg. It does not connect or collect until Start.
func New(cfg config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.ValidateSDK(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := options{
		log:       logrus.StandardLogger(),
		userAgent: defaultUserAgent(),
		memory:    collector.RuntimeMemory,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stats == nil {
		o.stats = metrics.NewCollector()
	}

	a := &Agent{
		cfg:   cfg,
		log:   logging.Component(o.log, "agent"),
		stats: o.stats,
		now:   time.Now,
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = httpclient.NewClient(requestTimeout(cfg), httpclient.WithUserAgent(o.userAgent))
	}
	a.api = httpclient.NewAPIClient(httpclient.APIConfig{
		BaseURL:   cfg.APIURL,
		APIKey:    cfg.APIKey,
		ProjectID: cfg.ProjectID,
		Client:    httpClient,
		Tracer:    o.tracer,
		Propagate: cfg.Tracing.ShouldPropagate(),
	})

	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = config.DefaultWSURL
	}
	wsCfg := websocket.Config{
		URL:                  wsURL,
		APIKey:               cfg.APIKey,
		ProjectID:            cfg.ProjectID,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectInterval:    cfg.Reconnect.Interval,
		Logger:               o.log,
	}
	for _, fn := range o.wsOptions {
		fn(&wsCfg)
	}
	userStatus := wsCfg.OnStatus
	wsCfg.OnStatus = func(s websocket.Status) {
		a.observeStatus(s)
		if userStatus != nil {
			userStatus(s)
		}
	}
	ws, err := websocket.NewClient(wsCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	a.ws = ws

	a.collector = collector.New(collector.Env{
		Timeline:       o.timeline,
		Memory:         o.memory,
		MemoryInterval: cfg.MemoryInterval,
		PageURL:        o.pageURL,
		UserAgent:      o.userAgent,
		Now:            a.now,
	}, collector.WithLogger(o.log))

	return a, nil
}

// requestTimeout falls back to the default when cfg leaves Timeout unset.
func requestTimeout(cfg config.Config) time.Duration {
	if cfg.Timeout <= 0 {
		return config.DefaultTimeout
	}
	return cfg.Timeout
}

func defaultUserAgent() string {
	return fmt.Sprintf("perfmaster-agent/%s (%s; %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Start connects the WebSocket and begins collecting. Calling Start on a
// running agent does nothing.
func (a *Agent) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.ws.Connect()
	a.collector.Start(a.sendMetrics)
	a.log.WithFields(logrus.Fields{
		"environment": a.cfg.Environment,
		"project_id":  a.cfg.ProjectID,
		"sources":     a.collector.Active(),
	}).Info("agent started")
}

// Stop stops collecting and closes the WebSocket. REST deliveries already
// in flight keep running; use Wait to drain them. Stop is idempotent.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.collector.Stop()
	a.ws.Disconnect()
	ws := a.ws.Metrics()
	a.log.WithFields(logrus.Fields{
		"ws_sent":         ws.MessagesSent,
		"ws_dropped":      ws.Dropped,
		"ws_connected_ms": ws.ConnectedTotal.Milliseconds(),
		"ws_last_error":   ws.LastError,
	}).Info("agent stopped")
}

// Wait blocks until every in-flight REST delivery has finished or ctx is
// done.
func (a *Agent) Wait(ctx context.Context) error {
	a.flightMu.Lock()
	if a.inflight == 0 {
		a.flightMu.Unlock()
		return nil
	}
	drained := a.drained
	a.flightMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackEvent sends a custom event over the WebSocket. It is dropped when
// the connection is not open.
func (a *Agent) TrackEvent(name string, data any) {
	a.sendRealtime(perf.NewEvent(name, data, a.now()))
}

// TrackError sends err over the WebSocket. A nil error is ignored.
func (a *Agent) TrackError(err error) {
	if err == nil {
		return
	}
	a.sendRealtime(perf.NewErrorReport(err, a.now()))
}

// ReportWebVital posts a named web-vital to the dedicated REST path in the
// background.
func (a *Agent) ReportWebVital(name string, value float64) {
	v := perf.NewWebVital(name, value, a.now())
	a.deliver(metrics.ChannelWebVitals, func(ctx context.Context) error {
		return a.api.SendWebVitals(ctx, v)
	})
}

// Stats returns the delivery telemetry collector.
func (a *Agent) Stats() *metrics.Collector {
	return a.stats
}

// ConnectionState returns the WebSocket state.
func (a *Agent) ConnectionState() websocket.State {
	return a.ws.State()
}

func (a *Agent) sendMetrics(m perf.Metrics) {
	a.stats.RecordMetric(m.Values())
	a.log.WithField("fields", m.Fields()).Debug("metric collected")

	a.sendRealtime(m)
	a.deliver(metrics.ChannelREST, func(ctx context.Context) error {
		return a.api.SendMetrics(ctx, m)
	})
}

func (a *Agent) sendRealtime(v any) {
	start := time.Now()
	if a.ws.Send(v) {
		a.stats.RecordDelivery(metrics.ChannelWebSocket, time.Since(start), nil)
		return
	}
	a.stats.RecordDrop(metrics.ChannelWebSocket)
}

// deliver runs send in its own goroutine. Errors are logged and counted.
func (a *Agent) deliver(channel string, send func(context.Context) error) {
	a.flightMu.Lock()
	if a.inflight == 0 {
		a.drained = make(chan struct{})
	}
	a.inflight++
	a.flightMu.Unlock()

	go func() {
		defer a.finishDelivery()
		start := time.Now()
		err := send(context.Background())
		a.stats.RecordDelivery(channel, time.Since(start), err)
		if err != nil {
			a.log.WithError(err).WithField("channel", channel).Error(deliveryFailure(channel))
		}
	}()
}

func deliveryFailure(channel string) string {
	if channel == metrics.ChannelWebVitals {
		return "failed to send web vital via API"
	}
	return "failed to send metrics via API"
}

func (a *Agent) finishDelivery() {
	a.flightMu.Lock()
	a.inflight--
	if a.inflight == 0 {
		close(a.drained)
	}
	a.flightMu.Unlock()
}

func (a *Agent) observeStatus(s websocket.Status) {
	switch {
	case s.Exhausted:
		a.log.WithField("attempts", s.Attempt).Warn("real-time channel unavailable, metrics continue over REST")
	case s.Attempt > 0:
		a.stats.RecordReconnect()
	default:
		a.stats.SetConnected(s.State == websocket.StateConnected)
	}
}
