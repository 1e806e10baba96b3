package agent

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/perfmaster/agent/internal/collector"
	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/timeline"
	"github.com/perfmaster/agent/internal/websocket"
)

type options struct {
	timeline   timeline.Timeline
	httpClient *http.Client
	log        logrus.FieldLogger
	pageURL    string
	userAgent  string
	stats      *metrics.Collector
	tracer     trace.Tracer
	memory     collector.MemoryReader
	wsOptions  []func(*websocket.Config)
}

// Option customizes an Agent.
type Option func(*options)

// WithTimeline supplies the performance timeline the paint, input, layout,
// navigation, and resource sources observe. Without one only heap sampling
// runs.
func WithTimeline(tl timeline.Timeline) Option {
	return func(o *options) { o.timeline = tl }
}

// WithHTTPClient overrides the client used for REST deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithPage sets the page URL and user agent stamped on every record.
func WithPage(pageURL, userAgent string) Option {
	return func(o *options) {
		o.pageURL = pageURL
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithStats records delivery outcomes into c instead of a private collector.
func WithStats(c *metrics.Collector) Option {
	return func(o *options) {
		if c != nil {
			o.stats = c
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMemoryReader replaces the heap reader. A nil reader disables memory
// sampling.
func WithMemoryReader(r collector.MemoryReader) Option {
	return func(o *options) { o.memory = r }
}

// WithWebSocketOptions adjusts the WebSocket client configuration after the
// agent has filled it in.
func WithWebSocketOptions(fns ...func(*websocket.Config)) Option {
	return func(o *options) { o.wsOptions = append(o.wsOptions, fns...) }
}
