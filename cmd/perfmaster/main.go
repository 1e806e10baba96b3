package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/perfmaster/agent/internal/agent"
	"github.com/perfmaster/agent/internal/config"
	"github.com/perfmaster/agent/internal/har"
	"github.com/perfmaster/agent/internal/logging"
	"github.com/perfmaster/agent/internal/metrics"
	"github.com/perfmaster/agent/internal/output"
	"github.com/perfmaster/agent/internal/threshold"
	"github.com/perfmaster/agent/internal/timeline"
	"github.com/perfmaster/agent/internal/tracing"
)

const (
	progressInterval = time.Second
	drainTimeout     = 5 * time.Second
	shutdownTimeout  = 2 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "perfmaster",
		Short:         "Collect performance metrics and stream them to the perfmaster backend",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Version = agent.Version
	config.RegisterFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	budgets, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(cfg.Log, stderr)
	if err != nil {
		return err
	}
	log := logging.Component(logger, "cli")

	provider, err := tracing.Init(ctx, cfg.Tracing,
		tracing.WithServiceVersion(agent.Version),
		tracing.WithEnvironment(string(cfg.Environment)),
		tracing.WithProjectID(cfg.ProjectID),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	stats := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := registerTelemetry(reg, stats, logger); err != nil {
			return err
		}
		stop, err := serve(cfg.MetricsAddr, metricsHandler(reg), log.WithField("server", "metrics"))
		if err != nil {
			return err
		}
		defer stop()
	}

	buf := timeline.NewBuffer()
	if cfg.IngestAddr != "" {
		stop, err := serve(cfg.IngestAddr, timeline.IngestHandler(buf, logger), log.WithField("server", "ingest"))
		if err != nil {
			return err
		}
		defer stop()
	}

	a, err := agent.Init(*cfg,
		agent.WithTimeline(buf),
		agent.WithLogger(logger),
		agent.WithStats(stats),
		agent.WithTracer(provider.Tracer()),
		agent.WithPage(cfg.Probe.Target, ""),
	)
	if err != nil {
		return err
	}

	runCtx := ctx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	if cfg.HARFile != "" {
		archive, err := har.ParseFile(cfg.HARFile)
		if err != nil {
			agent.Destroy()
			return err
		}
		n, err := har.Replay(buf, archive, har.Options{})
		if err != nil {
			agent.Destroy()
			return err
		}
		log.WithField("entries", n).Info("replayed HAR archive")
	}

	proberDone := make(chan struct{})
	if cfg.Probe.Target != "" {
		prober := timeline.NewProber(buf, timeline.ProberConfig{
			Target:    cfg.Probe.Target,
			Resources: cfg.Probe.Resources,
			Interval:  cfg.Probe.Interval,
			Rate:      cfg.Probe.Rate,
		}, nil, logger)
		go func() {
			defer close(proberDone)
			if err := prober.Run(runCtx); err != nil {
				log.WithError(err).Warn("prober stopped")
			}
		}()
	} else {
		close(proberDone)
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput {
		progress = output.NewProgressReporter(stats, progressInterval, stdout)
		progress.Start()
	}

	<-runCtx.Done()
	<-proberDone

	agent.Destroy()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.Wait(drainCtx); err != nil {
		log.WithError(err).Warn("REST deliveries still in flight at exit")
	}

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}

	report := stats.Stats(stats.Elapsed())
	results := threshold.NewEvaluator(budgets).Evaluate(report)
	if cfg.JSONOutput {
		if err := output.PrintJSONReportWithThresholds(stdout, report, results); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
		output.PrintThresholdResults(stdout, results)
	}
	if n := threshold.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d thresholds failed", n, len(results))
	}
	return nil
}

func registerTelemetry(reg *prometheus.Registry, stats *metrics.Collector, logger *logrus.Logger) error {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}
	if err := stats.Register(reg); err != nil {
		return err
	}
	hook, err := logging.NewPrometheusHook(reg)
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// serve listens on addr in the background and returns a function that shuts
// the server down.
func serve(addr string, handler http.Handler, log logrus.FieldLogger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("listening")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
