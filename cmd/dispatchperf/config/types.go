// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the YAML configuration of the dispatchperf runner.
package config

import (
	"time"

	"github.com/AleutianAI/dispatchperf/pkg/logging"
	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
)

type HarnessConfig struct {
	// Matrix: the configurations to measure
	Matrix MatrixConfig `yaml:"matrix"`

	// Warmup: discarded iterations before measurement
	Warmup WarmupConfig `yaml:"warmup"`

	// Measurement: the timed iterations
	Measurement MeasurementConfig `yaml:"measurement"`

	// Forks: child processes per configuration, 0 measures in-process
	Forks int `yaml:"forks" validate:"gte=0,lte=100"`

	// CPU: core to pin the measuring thread to, -1 leaves it unpinned
	CPU int `yaml:"cpu" validate:"gte=-1"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type MatrixConfig struct {
	Sizes      []int    `yaml:"sizes" validate:"required,min=1,dive,gte=0,lte=2147483647"` // e.g. [1000]
	Workers    []int    `yaml:"workers" validate:"required,min=1,dive,min=1,max=10"`       // e.g. [1, 5, 10]
	Strategies []string `yaml:"strategies" validate:"required,min=1,dive,required"`        // names, "core" or "all"
}

type WarmupConfig struct {
	Iterations int           `yaml:"iterations" validate:"gte=0"`
	Time       time.Duration `yaml:"time" validate:"gte=0"` // minimum per iteration, 0 = one batch
}

type MeasurementConfig struct {
	Iterations       int           `yaml:"iterations" validate:"min=1"`
	Time             time.Duration `yaml:"time" validate:"gte=0"`
	Batch            int           `yaml:"batch" validate:"min=1"`
	Cooldown         time.Duration `yaml:"cooldown" validate:"gte=0"`
	RemoveOutliers   bool          `yaml:"remove_outliers"`
	OutlierThreshold float64       `yaml:"outlier_threshold" validate:"gt=0"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none prometheus stdout"`
	MetricsAddr    string `yaml:"metrics_addr,omitempty" validate:"omitempty,listenaddr"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `yaml:"otlp_insecure,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// DefaultConfig mirrors the classic parameter set: size 1000, 1/5/10
// workers, the four core strategies, five warm-up and five measured
// iterations, one fork.
func DefaultConfig() HarnessConfig {
	b := bench.DefaultConfig()
	return HarnessConfig{
		Matrix: MatrixConfig{
			Sizes:      []int{1000},
			Workers:    []int{1, 5, 10},
			Strategies: strategy.CoreNames(),
		},
		Warmup: WarmupConfig{
			Iterations: b.WarmupIterations,
			Time:       time.Second,
		},
		Measurement: MeasurementConfig{
			Iterations:       b.Iterations,
			Time:             time.Second,
			Batch:            b.Batch,
			OutlierThreshold: b.OutlierThreshold,
		},
		Forks: 1,
		CPU:   -1,
		Telemetry: TelemetryConfig{
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterNone,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ExperimentMatrix returns the matrix with strategy selections resolved
// against reg.
func (c HarnessConfig) ExperimentMatrix(reg *strategy.Registry) (experiment.Matrix, error) {
	selected, err := reg.Resolve(c.Matrix.Strategies)
	if err != nil {
		return experiment.Matrix{}, err
	}
	names := make([]string, len(selected))
	for i, s := range selected {
		names[i] = s.Name
	}
	return experiment.Matrix{
		Sizes:      append([]int(nil), c.Matrix.Sizes...),
		Workers:    append([]int(nil), c.Matrix.Workers...),
		Strategies: names,
	}, nil
}

// BenchConfig converts the warm-up and measurement sections.
func (c HarnessConfig) BenchConfig() *bench.Config {
	b := bench.DefaultConfig()
	b.WarmupIterations = c.Warmup.Iterations
	b.WarmupTime = c.Warmup.Time
	b.Iterations = c.Measurement.Iterations
	b.IterationTime = c.Measurement.Time
	b.Batch = c.Measurement.Batch
	b.Cooldown = c.Measurement.Cooldown
	b.RemoveOutliers = c.Measurement.RemoveOutliers
	b.OutlierThreshold = c.Measurement.OutlierThreshold
	b.CPU = c.CPU
	return b
}

// TelemetryInit overlays the telemetry section on base.
func (c HarnessConfig) TelemetryInit(base telemetry.Config) telemetry.Config {
	base.TraceExporter = c.Telemetry.TraceExporter
	base.MetricExporter = c.Telemetry.MetricExporter
	if c.Telemetry.OTLPEndpoint != "" {
		base.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	base.OTLPInsecure = c.Telemetry.OTLPInsecure
	return base
}

// LoggingConfig converts the log section. An unknown level falls back to info.
func (c HarnessConfig) LoggingConfig(service string) logging.Config {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Log.Dir,
		Service: service,
		JSON:    c.Log.JSON,
	}
}
