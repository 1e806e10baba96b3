package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/tidwall/gjson"

	"github.com/perfmaster/agent/internal/config"
	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/timeline"
	"github.com/perfmaster/agent/internal/websocket"
)

type restCall struct {
	path   string
	header http.Header
	body   string
}

// backend serves the REST API under /api/v1 and the ingestion socket at /ws.
type backend struct {
	srv *httptest.Server

	mu         sync.Mutex
	restStatus int
	rest       []restCall
	ws         []string
	wsQuery    string
}

func newBackend(t *testing.T, restStatus int) *backend {
	t.Helper()
	b := &backend{restStatus: restStatus}
	upgrader := gorilla.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.rest = append(b.rest, restCall{path: r.URL.Path, header: r.Header.Clone(), body: string(body)})
		status := b.restStatus
		b.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		b.mu.Lock()
		b.wsQuery = r.URL.RawQuery
		b.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.mu.Lock()
			b.ws = append(b.ws, string(data))
			b.mu.Unlock()
		}
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) config() config.Config {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.ProjectID = "test-project"
	cfg.APIURL = b.srv.URL + "/api/v1"
	cfg.WSURL = "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
	cfg.Reconnect.Interval = 10 * time.Millisecond
	return *cfg
}

func (b *backend) restCalls() []restCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]restCall(nil), b.rest...)
}

func (b *backend) wsMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ws...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitConnected(t *testing.T, a *Agent) {
	t.Helper()
	eventually(t, "websocket connection", func() bool {
		return a.ConnectionState() == websocket.StateConnected
	})
}

func drain(t *testing.T, a *Agent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ProjectID = "p"

	_, err := New(*cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("New() error = %v, want wrapped ValidationError", err)
	}
}

func TestMetricsFanOutToWebSocketAndREST(t *testing.T) {
	b := newBackend(t, http.StatusCreated)
	buf := timeline.NewBuffer()

	a, err := New(b.config(),
		WithTimeline(buf),
		WithMemoryReader(nil),
		WithPage("https://shop.example/", "test-agent"),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start()
	defer a.Stop()
	waitConnected(t, a)

	buf.Record(timeline.Entry{Type: timeline.EntryLargestContentfulPaint, StartTime: 1234})

	eventually(t, "websocket metric", func() bool { return len(b.wsMessages()) == 1 })
	drain(t, a)

	msg := gjson.Parse(b.wsMessages()[0])
	if msg.Get("lcp").Float() != 1234 || msg.Get("page_url").String() != "https://shop.example/" || msg.Get("user_agent").String() != "test-agent" {
		t.Errorf("ws payload = %s", msg.Raw)
	}
	if msg.Get("timestamp").Int() == 0 {
		t.Errorf("ws payload missing timestamp: %s", msg.Raw)
	}

	calls := b.restCalls()
	if len(calls) != 1 {
		t.Fatalf("rest calls = %d, want 1", len(calls))
	}
	if calls[0].path != "/api/v1/metrics" {
		t.Errorf("rest path = %s", calls[0].path)
	}
	if calls[0].header.Get("X-API-Key") != "test-key" || calls[0].header.Get("X-Project-ID") != "test-project" {
		t.Errorf("rest headers = %v", calls[0].header)
	}
	if ua := calls[0].header.Get("User-Agent"); ua != "test-agent" {
		t.Errorf("rest User-Agent = %q, want the page user agent", ua)
	}
	if gjson.Get(calls[0].body, "lcp").Float() != 1234 {
		t.Errorf("rest body = %s", calls[0].body)
	}

	b.mu.Lock()
	query := b.wsQuery
	b.mu.Unlock()
	if !strings.Contains(query, "api_key=test-key") || !strings.Contains(query, "project_id=test-project") {
		t.Errorf("ws query = %q", query)
	}

	stats := a.Stats().Stats(time.Second)
	ws, _ := stats.Channel(metrics.ChannelWebSocket)
	rest, _ := stats.Channel(metrics.ChannelREST)
	if ws.Successes != 1 || rest.Successes != 1 || stats.Emitted["lcp"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Connected {
		t.Error("stats should report the websocket as connected")
	}
}

func TestRESTFailureIsLoggedNotPropagated(t *testing.T) {
	b := newBackend(t, http.StatusInternalServerError)
	buf := timeline.NewBuffer()
	logger, hook := test.NewNullLogger()

	a, err := New(b.config(), WithTimeline(buf), WithMemoryReader(nil), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start()
	defer a.Stop()
	waitConnected(t, a)

	buf.Record(timeline.Entry{Type: timeline.EntryFirstInput, StartTime: 100, ProcessingStart: 112})
	eventually(t, "websocket metric", func() bool { return len(b.wsMessages()) == 1 })
	drain(t, a)

	var found *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "failed to send metrics via API" {
			found = e
		}
	}
	if found == nil {
		t.Fatal("REST failure was not logged")
	}
	if found.Level != logrus.ErrorLevel {
		t.Errorf("level = %s, want error", found.Level)
	}
	if err, _ := found.Data[logrus.ErrorKey].(error); err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("logged error = %v", found.Data[logrus.ErrorKey])
	}

	rest, _ := a.Stats().Stats(time.Second).Channel(metrics.ChannelREST)
	if rest.Failures != 1 {
		t.Errorf("rest failures = %d, want 1", rest.Failures)
	}
	if n := len(b.restCalls()); n != 1 {
		t.Errorf("rest calls = %d, want 1 (no retry)", n)
	}
}

func TestTrackEventAndErrorUseWebSocketOnly(t *testing.T) {
	b := newBackend(t, http.StatusOK)
	a, err := New(b.config(), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start()
	defer a.Stop()
	waitConnected(t, a)

	a.TrackEvent("checkout", map[string]any{"items": 3})
	a.TrackError(errors.New("payment declined"))
	a.TrackError(nil)

	eventually(t, "two websocket envelopes", func() bool { return len(b.wsMessages()) == 2 })
	drain(t, a)

	msgs := b.wsMessages()
	event := gjson.Parse(msgs[0])
	if event.Get("type").String() != "event" || event.Get("name").String() != "checkout" || event.Get("data.items").Int() != 3 {
		t.Errorf("event envelope = %s", event.Raw)
	}
	if event.Get("id").String() == "" || event.Get("timestamp").Int() == 0 {
		t.Errorf("event envelope missing id or timestamp: %s", event.Raw)
	}
	report := gjson.Parse(msgs[1])
	if report.Get("type").String() != "error" || report.Get("message").String() != "payment declined" {
		t.Errorf("error envelope = %s", report.Raw)
	}
	if report.Get("stack").String() == "" {
		t.Errorf("error envelope missing stack: %s", report.Raw)
	}
	if n := len(b.restCalls()); n != 0 {
		t.Errorf("rest calls = %d, events must not use REST", n)
	}
}

func TestTrackEventDroppedWhileDisconnected(t *testing.T) {
	b := newBackend(t, http.StatusOK)
	a, err := New(b.config(), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a.TrackEvent("before-start", nil)

	ws, _ := a.Stats().Stats(0).Channel(metrics.ChannelWebSocket)
	if ws.Dropped != 1 || ws.Total != 0 {
		t.Errorf("websocket stats = %+v", ws)
	}
	if n := len(b.wsMessages()); n != 0 {
		t.Errorf("ws messages = %d, want 0", n)
	}
}

func TestReportWebVital(t *testing.T) {
	b := newBackend(t, http.StatusOK)
	a, err := New(b.config(), WithMemoryReader(nil), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a.ReportWebVital("CLS", 0.08)
	drain(t, a)

	calls := b.restCalls()
	if len(calls) != 1 || calls[0].path != "/api/v1/metrics/web-vitals" {
		t.Fatalf("rest calls = %+v", calls)
	}
	body := gjson.Parse(calls[0].body)
	if body.Get("name").String() != "CLS" || body.Get("value").Float() != 0.08 || body.Get("id").String() == "" {
		t.Errorf("body = %s", body.Raw)
	}
	vitals, _ := a.Stats().Stats(0).Channel(metrics.ChannelWebVitals)
	if vitals.Successes != 1 {
		t.Errorf("web-vitals stats = %+v", vitals)
	}
}

func TestWebVitalFailureIsLogged(t *testing.T) {
	b := newBackend(t, http.StatusInternalServerError)
	logger, hook := test.NewNullLogger()
	a, err := New(b.config(), WithMemoryReader(nil), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a.ReportWebVital("LCP", 2400)
	drain(t, a)

	var found *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			found = e
		}
	}
	if found == nil {
		t.Fatal("web vital failure was not logged")
	}
	if found.Message != "failed to send web vital via API" {
		t.Errorf("message = %q", found.Message)
	}
	if found.Data["channel"] != metrics.ChannelWebVitals {
		t.Errorf("channel = %v, want %s", found.Data["channel"], metrics.ChannelWebVitals)
	}
}

func TestRequestTimeoutFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"unset", 0, config.DefaultTimeout},
		{"negative", -time.Second, config.DefaultTimeout},
		{"explicit", 250 * time.Millisecond, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestTimeout(config.Config{Timeout: tt.timeout}); got != tt.want {
				t.Errorf("requestTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStopHaltsCollectionAndIsIdempotent(t *testing.T) {
	b := newBackend(t, http.StatusOK)
	buf := timeline.NewBuffer()
	logger, hook := test.NewNullLogger()
	a, err := New(b.config(), WithTimeline(buf), WithMemoryReader(nil), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start()
	a.Start()
	waitConnected(t, a)
	a.TrackEvent("checkout", nil)

	a.Stop()
	a.Stop()

	var stopped []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "agent stopped" {
			stopped = append(stopped, e)
		}
	}
	if len(stopped) != 1 {
		t.Fatalf("agent stopped logged %d times, want 1", len(stopped))
	}
	if sent := stopped[0].Data["ws_sent"]; sent != int64(1) {
		t.Errorf("ws_sent = %v, want 1", sent)
	}
	if stopped[0].Data["component"] != "agent" {
		t.Errorf("component = %v", stopped[0].Data["component"])
	}
	if a.ConnectionState() != websocket.StateDisconnected {
		t.Errorf("state after Stop = %s", a.ConnectionState())
	}
	if n := buf.ObserverCount(); n != 0 {
		t.Errorf("observers after Stop = %d, want 0", n)
	}

	buf.Record(timeline.Entry{Type: timeline.EntryLargestContentfulPaint, StartTime: 50})
	drain(t, a)
	if n := len(b.restCalls()); n != 0 {
		t.Errorf("rest calls after Stop = %d, want 0", n)
	}
}

func TestWebSocketOptionsAndStatusHook(t *testing.T) {
	b := newBackend(t, http.StatusOK)
	var (
		mu       sync.Mutex
		statuses []websocket.Status
	)
	a, err := New(b.config(), WithMemoryReader(nil), WithLogger(quietLogger()),
		WithWebSocketOptions(func(c *websocket.Config) {
			c.OnStatus = func(s websocket.Status) {
				mu.Lock()
				statuses = append(statuses, s)
				mu.Unlock()
			}
		}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start()
	waitConnected(t, a)
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	var sawConnected bool
	for _, s := range statuses {
		if s.State == websocket.StateConnected {
			sawConnected = true
		}
	}
	if !sawConnected {
		t.Errorf("caller OnStatus never saw connected: %+v", statuses)
	}
	if a.Stats().Stats(0).Connected {
		t.Error("stats should report disconnected after Stop")
	}
}
