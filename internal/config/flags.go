package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "perfmaster",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Backend flags
	flags.String("api-key", "", "Project API key (falls back to PERFMASTER_API_KEY)")
	flags.String("project-id", "", "Project identifier (falls back to PERFMASTER_PROJECT_ID)")
	flags.String("environment", string(EnvironmentProduction), "Deployment environment: development, staging, or production")
	flags.String("api-url", DefaultAPIURL, "REST API base URL")
	flags.String("ws-url", DefaultWSURL, "WebSocket ingestion URL")
	flags.Duration("timeout", DefaultTimeout, "REST request timeout")
	flags.Int("reconnect-attempts", DefaultReconnectAttempts, "Automatic WebSocket reconnection attempts")
	flags.Duration("reconnect-interval", DefaultReconnectInterval, "Base WebSocket reconnection delay (attempt n waits n times this)")

	// Collection flags
	flags.Duration("memory-interval", DefaultMemoryInterval, "Heap usage sampling interval")
	flags.String("target", "", "Page URL to load as the navigation request")
	flags.StringSlice("resource", nil, "Resource URL to fetch each probe interval (repeatable)")
	flags.Duration("probe-interval", DefaultProbeInterval, "Interval between resource probes")
	flags.Int("probe-rate", 0, "Resource fetches per second limit (0 means unlimited)")
	flags.String("har", "", "Path to HAR file to replay into the timeline")
	flags.String("ingest-addr", "", "Listen address for the timeline ingest endpoint (e.g. :9400)")

	// Run and output flags
	flags.DurationP("duration", "d", 0, "How long to run the agent (0 runs until interrupted)")
	flags.String("metrics-addr", "", "Listen address for the Prometheus metrics endpoint")
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.StringSlice("threshold", nil, "Performance budget (repeatable, e.g., 'lcp:p75 < 2500')")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format: text or json")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into REST requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	str := func(name string, dst *string) error {
		if !fs.Changed(name) {
			return nil
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
	steps := []func() error{
		func() error { return str("api-key", &cfg.APIKey) },
		func() error { return str("project-id", &cfg.ProjectID) },
		func() error {
			var env string
			if err := str("environment", &env); err != nil || env == "" {
				return err
			}
			cfg.Environment = Environment(strings.ToLower(env))
			return nil
		},
		func() error { return str("api-url", &cfg.APIURL) },
		func() error { return str("ws-url", &cfg.WSURL) },
		func() error { return str("target", &cfg.Probe.Target) },
		func() error { return str("har", &cfg.HARFile) },
		func() error { return str("ingest-addr", &cfg.IngestAddr) },
		func() error { return str("metrics-addr", &cfg.MetricsAddr) },
		func() error { return str("log-level", &cfg.Log.Level) },
		func() error { return str("log-format", &cfg.Log.Format) },
		func() error { return str("tracing-endpoint", &cfg.Tracing.Endpoint) },
		func() error { return str("tracing-protocol", &cfg.Tracing.Protocol) },
		func() error { return str("tracing-service-name", &cfg.Tracing.ServiceName) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("reconnect-attempts") {
		val, err := fs.GetInt("reconnect-attempts")
		if err != nil {
			return err
		}
		cfg.Reconnect.MaxAttempts = val
	}
	if fs.Changed("reconnect-interval") {
		val, err := fs.GetDuration("reconnect-interval")
		if err != nil {
			return err
		}
		cfg.Reconnect.Interval = val
	}
	if fs.Changed("memory-interval") {
		val, err := fs.GetDuration("memory-interval")
		if err != nil {
			return err
		}
		cfg.MemoryInterval = val
	}
	if fs.Changed("resource") {
		val, err := fs.GetStringSlice("resource")
		if err != nil {
			return err
		}
		cfg.Probe.Resources = val
	}
	if fs.Changed("probe-interval") {
		val, err := fs.GetDuration("probe-interval")
		if err != nil {
			return err
		}
		cfg.Probe.Interval = val
	}
	if fs.Changed("probe-rate") {
		val, err := fs.GetInt("probe-rate")
		if err != nil {
			return err
		}
		cfg.Probe.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = val
	}
	return nil
}
