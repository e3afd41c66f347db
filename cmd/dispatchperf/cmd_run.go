// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/dispatchperf/cmd/dispatchperf/config"
	"github.com/AleutianAI/dispatchperf/pkg/ux"
	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type runOptions struct {
	bench          benchFlags
	sizes          []int
	workers        []int
	strategies     []string
	forks          int
	metricsAddr    string
	traceExporter  string
	metricExporter string
	diag           bool
	format         string
}

func (c *cli) runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure every configuration of the matrix and print a report",
		Example: `  dispatchperf run
  dispatchperf run --sizes 0,1000 --workers 1,5,10 --strategies core
  dispatchperf run --strategies all --forks 3 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runRun(cmd, &opts)
		},
	}

	d := config.DefaultConfig()
	opts.bench.register(cmd)
	f := cmd.Flags()
	f.IntSliceVar(&opts.sizes, "sizes", d.Matrix.Sizes, "workload sizes")
	f.IntSliceVar(&opts.workers, "workers", d.Matrix.Workers, "worker counts (1..10)")
	f.StringSliceVar(&opts.strategies, "strategies", d.Matrix.Strategies, `strategy names, "core" or "all"`)
	f.IntVar(&opts.forks, "forks", d.Forks, "child processes per configuration (0 measures in-process)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVar(&opts.traceExporter, "trace-exporter", d.Telemetry.TraceExporter, "trace exporter (none, stdout, otlp)")
	f.StringVar(&opts.metricExporter, "metric-exporter", d.Telemetry.MetricExporter, "OpenTelemetry metric exporter (none, prometheus, stdout)")
	f.BoolVar(&opts.diag, "diag", false, "start a gops diagnostics agent")
	f.StringVar(&opts.format, "format", formatText, "report format (text, json)")
	return cmd
}

// apply overlays explicitly given flags on cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.HarnessConfig) {
	o.bench.apply(cmd, cfg)
	f := cmd.Flags()
	if f.Changed("sizes") {
		cfg.Matrix.Sizes = o.sizes
	}
	if f.Changed("workers") {
		cfg.Matrix.Workers = o.workers
	}
	if f.Changed("strategies") {
		cfg.Matrix.Strategies = o.strategies
	}
	if f.Changed("forks") {
		cfg.Forks = o.forks
	}
	if f.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = o.metricsAddr
	}
	if f.Changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = o.traceExporter
	}
	if f.Changed("metric-exporter") {
		cfg.Telemetry.MetricExporter = o.metricExporter
	}
}

func (c *cli) runRun(cmd *cobra.Command, opts *runOptions) error {
	if opts.format != formatText && opts.format != formatJSON {
		return fmt.Errorf("%w: unknown format %q", errUsage, opts.format)
	}

	cfg := c.cfg
	opts.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := strategy.DefaultRegistry()
	matrix, err := cfg.ExperimentMatrix(reg)
	if err != nil {
		return err
	}
	if err := matrix.Validate(reg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger := c.logger.With(slog.String("run_id", runID)).Slog()

	if opts.diag {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Warn("gops agent failed to start", slog.String("error", err.Error()))
		} else {
			defer agent.Close()
		}
	}

	promReg := prometheus.NewRegistry()
	telCfg := cfg.TelemetryInit(telemetry.DefaultConfig())
	telCfg.Registry = promReg
	telCfg.Writer = c.stderr
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	sink, err := newRunSink(promReg, telCfg.MetricExporter)
	if err != nil {
		return err
	}
	defer sink.Close()

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		stopMetrics, err := serveMetrics(addr, promReg, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	m, err := c.newMeasurer(cfg, runID, sink, logger)
	if err != nil {
		return err
	}

	configs := matrix.Expand()
	logger.Info("run started",
		slog.Int("configurations", len(configs)),
		slog.Int("forks", cfg.Forks),
	)

	results, err := measureAll(ctx, m, configs, cfg.Forks, ux.NewProgress(c.printer, "measuring", len(configs)*max(cfg.Forks, 1)))
	if err != nil {
		return err
	}
	if err := sink.Flush(ctx); err != nil {
		logger.Warn("flushing telemetry failed", slog.String("error", err.Error()))
	}

	aggregated, err := experiment.Aggregate(results)
	if err != nil {
		return err
	}

	if opts.format == formatJSON {
		return writeRecords(c.stdout, aggregated)
	}
	return ux.RenderReport(c.stdout, buildReport(aggregated, runID))
}

// measureAll measures configs in order, each once in-process when forks is
// 0 or once per fork otherwise.
func measureAll(ctx context.Context, m measurer, configs []experiment.Configuration, forks int, progress *ux.Progress) ([]*experiment.Result, error) {
	results := make([]*experiment.Result, 0, len(configs)*max(forks, 1))
	for _, ec := range configs {
		if forks == 0 {
			r, err := m.Measure(ctx, ec, 0)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
			progress.Step(ec.String())
			continue
		}
		for fork := 1; fork <= forks; fork++ {
			r, err := m.Measure(ctx, ec, fork)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
			progress.Step(fmt.Sprintf("%s fork %d/%d", ec, fork, forks))
		}
	}
	return results, nil
}

// newRunSink records to Prometheus, and also to OpenTelemetry metrics when
// an exporter is configured.
func newRunSink(reg *prometheus.Registry, metricExporter string) (telemetry.Sink, error) {
	promCfg := telemetry.DefaultPrometheusConfig()
	promCfg.Registry = reg
	promSink, err := telemetry.NewPrometheusSink(promCfg)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus sink: %w", err)
	}
	if metricExporter == "" || metricExporter == telemetry.ExporterNone {
		return promSink, nil
	}

	otelSink, err := telemetry.NewOTelSink(nil)
	if err != nil {
		_ = promSink.Close()
		return nil, fmt.Errorf("creating otel sink: %w", err)
	}
	multi, err := telemetry.NewMultiSink(promSink, otelSink)
	if err != nil {
		return nil, err
	}
	return multi, nil
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	handler := telemetry.MetricsHandler()
	if handler == nil {
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// benchOptions converts the timing sections of cfg.
func benchOptions(cfg config.HarnessConfig) []bench.RunOption {
	return []bench.RunOption{bench.WithConfig(cfg.BenchConfig())}
}
