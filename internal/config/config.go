// Package config provides configuration loading and validation for the
// perfmaster agent.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Environment is the deployment stage the agent reports from.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

const (
	DefaultAPIURL            = "https://your-backend-url.onrender.com/api/v1"
	DefaultWSURL             = "wss://your-backend-url.onrender.com"
	DefaultTimeout           = 10 * time.Second
	DefaultMemoryInterval    = 30 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReconnectInterval = time.Second
	DefaultProbeInterval     = 30 * time.Second
)

type Config struct {
	APIKey         string          `mapstructure:"api_key"`
	ProjectID      string          `mapstructure:"project_id"`
	Environment    Environment     `mapstructure:"environment"`
	APIURL         string          `mapstructure:"api_url"`
	WSURL          string          `mapstructure:"ws_url"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	MemoryInterval time.Duration   `mapstructure:"memory_interval"`
	Reconnect      ReconnectConfig `mapstructure:"reconnect"`
	Probe          ProbeConfig     `mapstructure:"probe"`
	HARFile        string          `mapstructure:"har_file"`
	IngestAddr     string          `mapstructure:"ingest_addr"`
	MetricsAddr    string          `mapstructure:"metrics_addr"`
	Duration       time.Duration   `mapstructure:"duration"`
	JSONOutput     bool            `mapstructure:"json_output"`
	Thresholds     []string        `mapstructure:"thresholds"`
	Log            LogConfig       `mapstructure:"log"`
	Tracing        TracingConfig   `mapstructure:"tracing"`
	ConfigFile     string          `mapstructure:"-"`
}

type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // automatic attempts before giving up
	Interval    time.Duration `mapstructure:"interval"`     // attempt n waits interval*n
}

type ProbeConfig struct {
	Target    string        `mapstructure:"target"`    // page loaded once as the navigation
	Resources []string      `mapstructure:"resources"` // URLs fetched every interval
	Interval  time.Duration `mapstructure:"interval"`
	Rate      int           `mapstructure:"rate"` // resource fetches per second, 0 = unlimited
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers should be injected into
// outgoing REST requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate || t.Enabled()
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Environment:    EnvironmentProduction,
		APIURL:         DefaultAPIURL,
		WSURL:          DefaultWSURL,
		Timeout:        DefaultTimeout,
		MemoryInterval: DefaultMemoryInterval,
		Reconnect: ReconnectConfig{
			MaxAttempts: DefaultReconnectAttempts,
			Interval:    DefaultReconnectInterval,
		},
		Probe: ProbeConfig{
			Interval: DefaultProbeInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// ValidateSDK checks the fields the agent needs to talk to the backend.
func (c Config) ValidateSDK() error {
	if issues := c.sdkIssues(); len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	issues := c.sdkIssues()

	if c.MemoryInterval <= 0 {
		issues = append(issues, "memory_interval must be > 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Probe.Rate < 0 {
		issues = append(issues, "probe.rate must be >= 0")
	}
	if c.Probe.Interval <= 0 {
		issues = append(issues, "probe.interval must be > 0")
	}
	if c.Probe.Target != "" {
		if err := checkURL(c.Probe.Target, "http", "https"); err != nil {
			issues = append(issues, fmt.Sprintf("probe.target %v", err))
		}
	}
	for i, r := range c.Probe.Resources {
		if err := checkURL(r, "http", "https"); err != nil {
			issues = append(issues, fmt.Sprintf("probe.resources[%d] %v", i, err))
		}
	}
	if c.HARFile != "" {
		if _, err := os.Stat(c.HARFile); err != nil {
			issues = append(issues, fmt.Sprintf("har_file: %v", err))
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		issues = append(issues, fmt.Sprintf("log.level %q is invalid", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c Config) sdkIssues() []string {
	var issues []string
	if strings.TrimSpace(c.APIKey) == "" {
		issues = append(issues, "api_key is required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		issues = append(issues, "project_id is required")
	}
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction:
	default:
		issues = append(issues, fmt.Sprintf("environment must be development, staging, or production, got %q", c.Environment))
	}
	if c.APIURL != "" {
		if err := checkURL(c.APIURL, "http", "https"); err != nil {
			issues = append(issues, fmt.Sprintf("api_url %v", err))
		}
	}
	if c.WSURL != "" {
		if err := checkURL(c.WSURL, "ws", "wss", "http", "https"); err != nil {
			issues = append(issues, fmt.Sprintf("ws_url %v", err))
		}
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Reconnect.MaxAttempts < 0 {
		issues = append(issues, "reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Interval < 0 {
		issues = append(issues, "reconnect.interval must be >= 0")
	}
	return issues
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("must use one of the schemes %s", strings.Join(schemes, ", "))
}
