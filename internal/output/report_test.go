package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/threshold"
)

func sampleStats() metrics.Stats {
	c := metrics.NewCollector()
	c.RecordMetric(map[string]float64{"lcp": 2100})
	c.RecordMetric(map[string]float64{"ttfb": 90, "fcp": 640})
	c.RecordDelivery(metrics.ChannelWebSocket, time.Millisecond, nil)
	c.RecordDrop(metrics.ChannelWebSocket)
	c.RecordDelivery(metrics.ChannelREST, 40*time.Millisecond, nil)
	c.RecordDelivery(metrics.ChannelREST, 40*time.Millisecond, errors.New("boom"))
	c.RecordReconnect()
	c.SetConnected(true)
	return c.Stats(2 * time.Second)
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleStats())

	out := buf.String()
	for _, want := range []string{
		"Agent Summary",
		"Metric values:     3",
		"WS reconnects:     1",
		"lcp:",
		"count=1, last=2100",
		"- rest: total=2, successes=1, failures=1",
		"- websocket: total=1, successes=1, failures=0, dropped=1",
		"Delivery Errors:",
		"rest Other error: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.NewCollector().Stats(0))
	out := buf.String()
	if strings.Contains(out, "Deliveries:") || strings.Contains(out, "Delivery Errors:") {
		t.Errorf("empty stats should omit sections:\n%s", out)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleStats()); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	var decoded struct {
		Channels []struct {
			Channel string `json:"channel"`
			Dropped int64  `json:"dropped"`
		} `json:"channels"`
		TotalEmissions int64 `json:"total_emissions"`
		Connected      bool  `json:"ws_connected"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.TotalEmissions != 3 || !decoded.Connected || len(decoded.Channels) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Channels[1].Channel != "websocket" || decoded.Channels[1].Dropped != 1 {
		t.Errorf("websocket channel = %+v", decoded.Channels[1])
	}
}

func sampleResults(t *testing.T) []threshold.Result {
	t.Helper()
	ths, err := threshold.ParseMultiple([]string{"lcp:max < 2500", "rest_failed:rate < 0.1"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	return threshold.NewEvaluator(ths).Evaluate(sampleStats())
}

func TestPrintThresholdResults(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholdResults(&buf, sampleResults(t))

	out := buf.String()
	for _, want := range []string{
		"Thresholds:",
		"✓ lcp:max < 2500: 2100.00 < 2500.00",
		"✗ rest_failed:rate < 0.1: 0.50 < 0.10",
		"1/2 passed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	buf.Reset()
	PrintThresholdResults(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("no results should print nothing, got %q", buf.String())
	}
}

func TestPrintJSONReportWithThresholds(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReportWithThresholds(&buf, sampleStats(), sampleResults(t)); err != nil {
		t.Fatalf("PrintJSONReportWithThresholds() error = %v", err)
	}
	var decoded struct {
		TotalEmissions int64                 `json:"total_emissions"`
		Thresholds     []ThresholdResultJSON `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.TotalEmissions != 3 {
		t.Errorf("TotalEmissions = %d, want 3", decoded.TotalEmissions)
	}
	if len(decoded.Thresholds) != 2 {
		t.Fatalf("Thresholds = %+v", decoded.Thresholds)
	}
	if !decoded.Thresholds[0].Pass || decoded.Thresholds[0].Actual != 2100 {
		t.Errorf("first result = %+v", decoded.Thresholds[0])
	}
	if decoded.Thresholds[1].Pass || decoded.Thresholds[1].Metric != "rest_failed" {
		t.Errorf("second result = %+v", decoded.Thresholds[1])
	}
}
