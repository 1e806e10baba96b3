package perf

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMetricsJSONOmitsUnsetFields(t *testing.T) {
	m := Metrics{
		CLS:       Float(0.12),
		Timestamp: 1700000000000,
		PageURL:   "https://example.com/",
		UserAgent: "agent/1.0",
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	for _, key := range []string{"lcp", "fid", "fcp", "ttfb", "memory_usage", "bundle_size"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("unexpected key %q in %s", key, data)
		}
	}
	for _, key := range []string{"cls", "timestamp", "page_url", "user_agent"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}

func TestMetricsFields(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		want []string
	}{
		{"empty", Metrics{}, nil},
		{"navigation", Metrics{TTFB: Float(10), FCP: Float(20)}, []string{"fcp", "ttfb"}},
		{"resource", Metrics{BundleSize: Int(100), NetworkRequests: Int(2)}, []string{"bundle_size", "network_requests"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.Fields()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Fields() = %v, want %v", got, tt.want)
			}
			if tt.m.Empty() != (len(tt.want) == 0) {
				t.Errorf("Empty() = %v", tt.m.Empty())
			}
		})
	}
}

func TestMetricsValues(t *testing.T) {
	m := Metrics{CLS: Float(0.05), MemoryUsage: Int(2048), Timestamp: 1}
	want := map[string]float64{"cls": 0.05, "memory_usage": 2048}
	if got := m.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if got := (Metrics{}).Values(); len(got) != 0 {
		t.Errorf("empty Values() = %v", got)
	}
}

func TestNewEventEnvelope(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ev := NewEvent("checkout", map[string]int{"items": 3}, now)
	if ev.Type != TypeEvent {
		t.Errorf("Type = %q, want %q", ev.Type, TypeEvent)
	}
	if ev.ID == "" {
		t.Error("ID is empty")
	}
	if ev.Timestamp != 1700000000123 {
		t.Errorf("Timestamp = %d", ev.Timestamp)
	}
}

type tracedError struct{ msg string }

func (e tracedError) Error() string      { return e.msg }
func (e tracedError) StackTrace() string { return "custom stack" }

func TestNewErrorReport(t *testing.T) {
	now := time.Now()

	report := NewErrorReport(errors.New("boom"), now)
	if report.Type != TypeError || report.Message != "boom" {
		t.Errorf("report = %+v", report)
	}
	if !strings.Contains(report.Stack, "TestNewErrorReport") {
		t.Errorf("stack does not contain caller:\n%s", report.Stack)
	}

	traced := NewErrorReport(tracedError{msg: "traced"}, now)
	if traced.Stack != "custom stack" {
		t.Errorf("Stack = %q, want error-provided stack", traced.Stack)
	}
}

func TestNewWebVitalIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := NewWebVital("LCP", 1200, now)
	b := NewWebVital("LCP", 1200, now)
	if a.ID == b.ID {
		t.Errorf("IDs collide: %s", a.ID)
	}
	if a.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d", a.Timestamp)
	}
}
