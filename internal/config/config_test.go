package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Default()
	cfg.APIKey = "key"
	cfg.ProjectID = "project"
	return *cfg
}

func TestValidateSDK(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "  " }, wantErr: "api_key is required"},
		{name: "missing project", mutate: func(c *Config) { c.ProjectID = "" }, wantErr: "project_id is required"},
		{name: "bad environment", mutate: func(c *Config) { c.Environment = "qa" }, wantErr: "environment must be"},
		{name: "bad api url", mutate: func(c *Config) { c.APIURL = "ftp://example.com" }, wantErr: "api_url"},
		{name: "api url without host", mutate: func(c *Config) { c.APIURL = "/api" }, wantErr: "must include a host"},
		{name: "http ws url accepted", mutate: func(c *Config) { c.WSURL = "http://localhost:8080" }},
		{name: "bad ws url", mutate: func(c *Config) { c.WSURL = "tcp://localhost:1" }, wantErr: "ws_url"},
		{name: "negative attempts", mutate: func(c *Config) { c.Reconnect.MaxAttempts = -1 }, wantErr: "reconnect.max_attempts"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, wantErr: "timeout must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.ValidateSDK()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateSDK() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateSDK() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAggregatesIssues(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""
	cfg.MemoryInterval = 0
	cfg.Probe.Rate = -1
	cfg.Probe.Target = "not a url"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Tracing.Protocol = "thrift"
	cfg.Tracing.SampleRate = 2

	err := cfg.Validate()
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	issues := verr.Issues()
	want := []string{"api_key", "memory_interval", "probe.rate", "probe.target", "log.level", "log.format", "tracing.protocol", "tracing.sample_rate"}
	if len(issues) != len(want) {
		t.Fatalf("issues = %v, want %d entries", issues, len(want))
	}
	for i, prefix := range want {
		if !strings.HasPrefix(issues[i], prefix) {
			t.Errorf("issue %d = %q, want prefix %q", i, issues[i], prefix)
		}
	}
}

func TestValidateMissingHARFile(t *testing.T) {
	cfg := validConfig()
	cfg.HARFile = "/nonexistent/page.har"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "har_file") {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestTracingEnabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var tc TracingConfig
	if tc.Enabled() || tc.ShouldPropagate() {
		t.Fatal("empty tracing config should be disabled")
	}
	tc.Propagate = true
	if tc.Enabled() || !tc.ShouldPropagate() {
		t.Fatal("propagate without endpoint should only propagate")
	}
	tc = TracingConfig{Endpoint: "localhost:4317"}
	if !tc.Enabled() || !tc.ShouldPropagate() {
		t.Fatal("endpoint should enable tracing and propagation")
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	if !(TracingConfig{}).Enabled() {
		t.Fatal("OTEL_EXPORTER_OTLP_ENDPOINT should enable tracing")
	}
}
