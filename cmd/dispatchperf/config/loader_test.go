// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/dispatchperf/pkg/logging"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
)

// TestDefaultConfig verifies the classic parameter set.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Matrix.Sizes) != 1 || cfg.Matrix.Sizes[0] != 1000 {
		t.Errorf("Sizes = %v, want [1000]", cfg.Matrix.Sizes)
	}
	if got := cfg.Matrix.Workers; len(got) != 3 || got[0] != 1 || got[1] != 5 || got[2] != 10 {
		t.Errorf("Workers = %v, want [1 5 10]", got)
	}
	if len(cfg.Matrix.Strategies) != 4 {
		t.Errorf("Strategies = %v, want the four core strategies", cfg.Matrix.Strategies)
	}
	if cfg.Warmup.Iterations != 5 || cfg.Measurement.Iterations != 5 {
		t.Errorf("iterations = %d/%d, want 5/5", cfg.Warmup.Iterations, cfg.Measurement.Iterations)
	}
	if cfg.Forks != 1 {
		t.Errorf("Forks = %d, want 1", cfg.Forks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

// TestWriteDefault verifies default config creation in nested directories.
func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "dispatchperf.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg HarnessConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Warmup.Time != time.Second {
		t.Errorf("Warmup.Time = %v, want 1s", cfg.Warmup.Time)
	}
	if cfg.CPU != -1 {
		t.Errorf("CPU = %d, want -1", cfg.CPU)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of the written default failed: %v", err)
	}
	if loaded.Forks != 1 {
		t.Errorf("Forks = %d, want 1", loaded.Forks)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Forks != DefaultConfig().Forks {
		t.Error("Load(\"\") should return defaults")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	content := `
matrix:
  sizes: [0, 10]
  workers: [3]
  strategies: [polymorphic]
warmup:
  iterations: 2
  time: 50ms
measurement:
  iterations: 7
  time: 100ms
  batch: 4
  remove_outliers: true
forks: 0
cpu: 2
telemetry:
  trace_exporter: stdout
  metrics_addr: "127.0.0.1:9464"
log:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Matrix.Sizes) != 2 || cfg.Matrix.Sizes[0] != 0 || cfg.Matrix.Sizes[1] != 10 {
		t.Errorf("Sizes = %v, want [0 10]", cfg.Matrix.Sizes)
	}
	if len(cfg.Matrix.Workers) != 1 || cfg.Matrix.Workers[0] != 3 {
		t.Errorf("Workers = %v, want [3]", cfg.Matrix.Workers)
	}
	if cfg.Warmup.Time != 50*time.Millisecond {
		t.Errorf("Warmup.Time = %v, want 50ms", cfg.Warmup.Time)
	}
	if cfg.Measurement.Batch != 4 || !cfg.Measurement.RemoveOutliers {
		t.Errorf("Measurement = %+v", cfg.Measurement)
	}
	if cfg.Measurement.OutlierThreshold != 1.5 {
		t.Errorf("OutlierThreshold = %v, want default 1.5", cfg.Measurement.OutlierThreshold)
	}
	if cfg.Forks != 0 || cfg.CPU != 2 {
		t.Errorf("Forks/CPU = %d/%d, want 0/2", cfg.Forks, cfg.CPU)
	}
	if cfg.Telemetry.TraceExporter != "stdout" || cfg.Telemetry.MetricExporter != "none" {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"workers above ten", "matrix:\n  workers: [11]\n"},
		{"zero workers", "matrix:\n  workers: [0]\n"},
		{"negative size", "matrix:\n  sizes: [-1]\n"},
		{"empty strategies", "matrix:\n  strategies: []\n"},
		{"zero iterations", "measurement:\n  iterations: 0\n"},
		{"unknown exporter", "telemetry:\n  trace_exporter: jaeger\n"},
		{"bad metrics addr", "telemetry:\n  metrics_addr: nope\n"},
		{"metrics port out of range", "telemetry:\n  metrics_addr: \":70000\"\n"},
		{"metrics port not numeric", "telemetry:\n  metrics_addr: \"localhost:http\"\n"},
		{"bad level", "log:\n  level: chatty\n"},
		{"cpu below -1", "cpu: -2\n"},
		{"malformed yaml", "matrix: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "harness.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidate_MetricsAddr(t *testing.T) {
	tests := []string{
		":0",
		"127.0.0.1:0",
		"localhost:9090",
		"[::1]:65535",
		"",
	}

	for _, addr := range tests {
		t.Run(addr, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Telemetry.MetricsAddr = addr
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestExperimentMatrix(t *testing.T) {
	reg := strategy.DefaultRegistry()

	cfg := DefaultConfig()
	cfg.Matrix.Strategies = []string{"all"}
	m, err := cfg.ExperimentMatrix(reg)
	if err != nil {
		t.Fatalf("ExperimentMatrix() error = %v", err)
	}
	if len(m.Strategies) != reg.Count() {
		t.Errorf("Strategies = %v, want all %d", m.Strategies, reg.Count())
	}
	if len(m.Expand()) != 1*3*reg.Count() {
		t.Errorf("Expand() = %d configurations", len(m.Expand()))
	}

	cfg.Matrix.Strategies = []string{"vtable"}
	if _, err := cfg.ExperimentMatrix(reg); !errors.Is(err, strategy.ErrNotFound) {
		t.Errorf("ExperimentMatrix() error = %v, want ErrNotFound", err)
	}
}

func TestBenchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Warmup.Iterations = 3
	cfg.Measurement.Iterations = 9
	cfg.Measurement.Batch = 2
	cfg.Measurement.Cooldown = time.Millisecond
	cfg.CPU = 1

	b := cfg.BenchConfig()
	if b.WarmupIterations != 3 || b.Iterations != 9 || b.Batch != 2 {
		t.Errorf("BenchConfig() = %+v", b)
	}
	if b.Cooldown != time.Millisecond || b.CPU != 1 {
		t.Errorf("BenchConfig() = %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("BenchConfig().Validate() error = %v", err)
	}
}

func TestTelemetryInit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.TraceExporter = telemetry.ExporterOTLP
	cfg.Telemetry.OTLPEndpoint = "collector:4317"
	cfg.Telemetry.OTLPInsecure = true

	base := telemetry.Config{ServiceName: "dispatchperf", OTLPEndpoint: "localhost:4317"}
	got := cfg.TelemetryInit(base)

	if got.ServiceName != "dispatchperf" {
		t.Errorf("ServiceName = %q", got.ServiceName)
	}
	if got.TraceExporter != telemetry.ExporterOTLP || got.OTLPEndpoint != "collector:4317" || !got.OTLPInsecure {
		t.Errorf("TelemetryInit() = %+v", got)
	}

	cfg.Telemetry.OTLPEndpoint = ""
	if got := cfg.TelemetryInit(base); got.OTLPEndpoint != "localhost:4317" {
		t.Errorf("empty endpoint should keep base, got %q", got.OTLPEndpoint)
	}
}

func TestLoggingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.JSON = true

	got := cfg.LoggingConfig("dispatchperf")
	if got.Level != logging.LevelWarn || !got.JSON || got.Service != "dispatchperf" {
		t.Errorf("LoggingConfig() = %+v", got)
	}

	cfg.Log.Level = "bogus"
	if got := cfg.LoggingConfig("x"); got.Level != logging.LevelInfo {
		t.Errorf("unknown level = %v, want INFO", got.Level)
	}
}
