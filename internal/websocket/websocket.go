// Package websocket maintains a best-effort real-time connection to the
// ingestion endpoint.
//
// The Client reconnects on its own with linear backoff (attempt n waits
// interval*n) and gives up after a fixed number of attempts until Connect is
// called again. Send never queues: messages written while the connection is
// not open are dropped.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/perfmaster/agent/internal/clientmetrics"
	"github.com/perfmaster/agent/internal/logging"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = time.Second
)

// Status describes a connection state change or reconnection decision.
type Status struct {
	State     State
	Attempt   int           // reconnection attempt number, 0 when not reconnecting
	Delay     time.Duration // delay before the scheduled attempt
	Exhausted bool          // no further automatic attempts will be made
}

// Config configures the WebSocket client behavior.
type Config struct {
	URL       string
	APIKey    string
	ProjectID string
	Headers   http.Header

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64

	MaxReconnectAttempts int
	ReconnectInterval    time.Duration

	Logger logrus.FieldLogger
	// OnStatus observes state changes and reconnection decisions. It must
	// not call back into the Client.
	OnStatus func(Status)
	// OnMessage receives every well-formed inbound JSON message.
	OnMessage func(gjson.Result)
}

type stopper interface {
	Stop() bool
}

// Client is a reconnecting WebSocket client.
type Client struct {
	url            string
	headers        http.Header
	dialer         *websocket.Dialer
	writeTimeout   time.Duration
	maxMessageSize int64
	log            logrus.FieldLogger
	onStatus       func(Status)
	onMessage      func(gjson.Result)
	afterFunc      func(time.Duration, func()) stopper
	metrics        *clientmetrics.Counters

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64
	backoff    backoff
	timer      stopper
	cancelDial context.CancelFunc
	manual     bool
	pending    []Status

	notifyMu sync.Mutex
}

// NewClient creates a Client. It does not connect.
func NewClient(cfg Config) (*Client, error) {
	target, err := buildURL(cfg.URL, cfg.APIKey, cfg.ProjectID)
	if err != nil {
		return nil, err
	}

	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 1024 * 1024 // 1MB default
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	return &Client{
		url:            target,
		headers:        cfg.Headers,
		dialer:         dialer,
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		log:            logging.Component(log, "websocket"),
		onStatus:       cfg.OnStatus,
		onMessage:      cfg.OnMessage,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		metrics: clientmetrics.New(),
		backoff: backoff{base: cfg.ReconnectInterval, max: cfg.MaxReconnectAttempts},
	}, nil
}

// buildURL appends the credentials as query parameters and maps http(s)
// schemes to ws(s).
func buildURL(raw, apiKey, projectID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid websocket URL scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("project_id", projectID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect starts connecting in the background. A manual Connect resets the
// reconnection attempt counter and re-enables automatic reconnection. It does
// nothing while a connection is open or being established.
func (c *Client) Connect() {
	c.mu.Lock()
	c.manual = false
	c.backoff.reset()
	c.stopTimerLocked()
	c.connectLocked()
	c.unlockAndNotify()
}

func (c *Client) connectLocked() {
	if !c.applyLocked(eventConnect) {
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	go c.dial(ctx, cancel, gen)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.metrics.Error(err)
		entry := c.log.WithError(err)
		if resp != nil {
			entry = entry.WithField("status", resp.StatusCode)
		}
		entry.Warn("websocket connection failed")
		c.applyLocked(eventFailed)
		c.scheduleReconnectLocked()
		c.unlockAndNotify()
		return
	}

	conn.SetReadLimit(c.maxMessageSize)
	c.conn = conn
	c.applyLocked(eventOpened)
	c.backoff.reset()
	c.metrics.Connected()
	c.log.Info("websocket connected")
	c.unlockAndNotify()

	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, gen, err)
			return
		}
		c.metrics.Received(len(data))
		c.handleMessage(data)
	}
}

func (c *Client) handleDrop(conn *websocket.Conn, gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	_ = conn.Close()
	c.metrics.Disconnected()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info("websocket disconnected")
	} else {
		c.metrics.Error(err)
		c.log.WithError(err).Warn("websocket disconnected")
	}
	c.applyLocked(eventDropped)
	c.scheduleReconnectLocked()
	c.unlockAndNotify()
}

func (c *Client) handleMessage(data []byte) {
	if !gjson.ValidBytes(data) {
		c.log.WithField("bytes", len(data)).Error("failed to parse websocket message")
		return
	}
	msg := gjson.ParseBytes(data)
	c.log.WithField("type", msg.Get("type").String()).Debug("received message")
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Client) scheduleReconnectLocked() {
	if c.manual {
		return
	}
	delay, attempt, ok := c.backoff.next()
	if !ok {
		c.log.WithField("attempts", attempt).Error("max reconnection attempts reached")
		c.pending = append(c.pending, Status{State: c.state, Attempt: attempt, Exhausted: true})
		return
	}

	c.metrics.ReconnectScheduled()
	c.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"max":     c.backoff.max,
		"delay":   delay,
	}).Info("attempting to reconnect")
	c.pending = append(c.pending, Status{State: c.state, Attempt: attempt, Delay: delay})

	token := c.gen
	c.timer = c.afterFunc(delay, func() {
		c.mu.Lock()
		if c.manual || c.gen != token {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.connectLocked()
		c.unlockAndNotify()
	})
}

// Send encodes v as JSON and writes it if the connection is open. Otherwise
// the message is dropped. It reports whether the message was written.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.metrics.Error(err)
		c.log.WithError(err).Error("failed to encode websocket message")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		c.metrics.Dropped()
		return false
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.metrics.Error(err)
		c.log.WithError(err).Warn("websocket write failed")
		return false
	}
	c.metrics.Sent(len(data))
	return true
}

// Disconnect closes the connection and cancels any pending reconnection.
// No automatic reconnection follows until Connect is called.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.gen++
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.applyLocked(eventDisconnect)
	c.metrics.Disconnected()
	c.unlockAndNotify()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		c.log.Info("websocket closed")
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnection attempts since the last
// successful connection or manual Connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.attempts
}

// Metrics returns the current counters.
func (c *Client) Metrics() clientmetrics.Snapshot {
	return c.metrics.Snapshot()
}

func (c *Client) applyLocked(ev event) bool {
	next, ok := transition(c.state, ev)
	if !ok {
		return false
	}
	if next != c.state {
		c.state = next
		c.pending = append(c.pending, Status{State: next})
	}
	return true
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// unlockAndNotify releases c.mu and delivers queued status updates in order.
func (c *Client) unlockAndNotify() {
	pending := c.pending
	c.pending = nil
	if c.onStatus == nil || len(pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, s := range pending {
		c.onStatus(s)
	}
}
