package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/perfmaster/agent/internal/perf"
	"github.com/perfmaster/agent/internal/tracing"
)

const (
	// DefaultAPIURL is the production REST endpoint.
	DefaultAPIURL = "https://your-backend-url.onrender.com/api/v1"

	metricsPath    = "/metrics"
	webVitalsPath  = "/metrics/web-vitals"
	defaultTimeout = 10 * time.Second
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	StatusText string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d %s", e.StatusCode, e.StatusText)
}

// APIConfig configures an APIClient.
type APIConfig struct {
	BaseURL   string // DefaultAPIURL when empty
	APIKey    string
	ProjectID string
	Client    *http.Client
	Tracer    trace.Tracer
	Propagate bool // inject W3C trace context headers
}

// APIClient posts metric records to the REST API.
type APIClient struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
	tracer    trace.Tracer
	propagate bool
}

// NewAPIClient creates an APIClient.
func NewAPIClient(cfg APIConfig) *APIClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultAPIURL
	}
	client := cfg.Client
	if client == nil {
		client = NewClient(defaultTimeout)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("perfmaster")
	}
	return &APIClient{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		client:    client,
		tracer:    tracer,
		propagate: cfg.Propagate,
	}
}

// BaseURL returns the REST endpoint prefix.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// SendMetrics posts a metric record to /metrics.
func (c *APIClient) SendMetrics(ctx context.Context, m perf.Metrics) error {
	return c.post(ctx, "rest", metricsPath, m)
}

// SendWebVitals posts a web-vital record to /metrics/web-vitals.
func (c *APIClient) SendWebVitals(ctx context.Context, v perf.WebVitalsMetric) error {
	return c.post(ctx, "web-vitals", webVitalsPath, v)
}

func (c *APIClient) post(ctx context.Context, channel, path string, payload any) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartDeliverySpan(ctx, c.tracer, tracing.Delivery{
		Channel: channel,
		Method:  http.MethodPost,
		Path:    path,
	})
	defer func() {
		tracing.EndDeliverySpan(span, err)
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	span.SetAttributes(tracing.AttrPayload.Int(len(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Project-ID", c.projectID)
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(tracing.AttrStatus.Int(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, StatusText: statusText(resp)}
	}
	return nil
}

// statusText extracts the reason phrase from the status line.
func statusText(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if text := strings.TrimPrefix(resp.Status, prefix); text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
