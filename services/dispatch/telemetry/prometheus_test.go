// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestPrometheusSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	config := DefaultPrometheusConfig()
	config.Registry = reg
	sink, err := NewPrometheusSink(config)
	if err != nil {
		t.Fatalf("NewPrometheusSink failed: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink, reg
}

func sampleMeasurement() *MeasurementData {
	return &MeasurementData{
		Strategy:     "polymorphic",
		NumWorkers:   5,
		Size:         1000,
		NanosPerCall: 2.5,
		Defined:      true,
		Iterations:   5,
		Calls:        5000,
		Samples:      []float64{2.4, 2.5, 2.5, 2.6, 2.5},
	}
}

func TestDefaultPrometheusConfig(t *testing.T) {
	config := DefaultPrometheusConfig()

	if config.Namespace != "dispatchperf" {
		t.Errorf("Namespace = %s, want dispatchperf", config.Namespace)
	}
	if config.Subsystem != "bench" {
		t.Errorf("Subsystem = %s, want bench", config.Subsystem)
	}
	if len(config.SampleBuckets) == 0 {
		t.Error("SampleBuckets should not be empty")
	}
}

func TestPrometheusConfig_Validate(t *testing.T) {
	t.Run("empty namespace", func(t *testing.T) {
		config := DefaultPrometheusConfig()
		config.Namespace = ""
		if err := config.Validate(); err == nil {
			t.Error("Validate() should fail for empty namespace")
		}
	})

	t.Run("empty subsystem", func(t *testing.T) {
		config := DefaultPrometheusConfig()
		config.Subsystem = ""
		if err := config.Validate(); err == nil {
			t.Error("Validate() should fail for empty subsystem")
		}
	})
}

func TestNewPrometheusSink(t *testing.T) {
	t.Run("rejects nil config", func(t *testing.T) {
		_, err := NewPrometheusSink(nil)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := NewPrometheusSink(&PrometheusConfig{Subsystem: "bench"})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("shares collectors on one registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		config := DefaultPrometheusConfig()
		config.Registry = reg

		first, err := NewPrometheusSink(config)
		if err != nil {
			t.Fatalf("first sink: %v", err)
		}
		second, err := NewPrometheusSink(config)
		if err != nil {
			t.Fatalf("second sink: %v", err)
		}

		ctx := context.Background()
		_ = first.RecordMeasurement(ctx, sampleMeasurement())
		_ = second.RecordMeasurement(ctx, sampleMeasurement())

		got := testutil.ToFloat64(first.callsTotal.WithLabelValues("polymorphic"))
		if got != 10000 {
			t.Errorf("calls_total = %v, want 10000", got)
		}
	})
}

func TestPrometheusSink_RecordMeasurement(t *testing.T) {
	sink, reg := newTestPrometheusSink(t)
	ctx := context.Background()

	if err := sink.RecordMeasurement(ctx, sampleMeasurement()); err != nil {
		t.Fatalf("RecordMeasurement failed: %v", err)
	}

	expected := `
# HELP dispatchperf_bench_nanos_per_call Mean nanoseconds per Compute call for the last measurement
# TYPE dispatchperf_bench_nanos_per_call gauge
dispatchperf_bench_nanos_per_call{size="1000",strategy="polymorphic",workers="5"} 2.5
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "dispatchperf_bench_nanos_per_call"); err != nil {
		t.Errorf("unexpected gauge: %v", err)
	}

	if got := testutil.ToFloat64(sink.iterationsTotal.WithLabelValues("polymorphic")); got != 5 {
		t.Errorf("iterations_total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(sink.callsTotal.WithLabelValues("polymorphic")); got != 5000 {
		t.Errorf("calls_total = %v, want 5000", got)
	}
	if n := testutil.CollectAndCount(sink.samples); n != 1 {
		t.Errorf("sample series = %d, want 1", n)
	}
}

func TestPrometheusSink_UndefinedMeasurement(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	data := &MeasurementData{Strategy: "direct", NumWorkers: 1, Size: 0}
	if err := sink.RecordMeasurement(context.Background(), data); err != nil {
		t.Fatalf("RecordMeasurement failed: %v", err)
	}

	if got := testutil.ToFloat64(sink.undefinedTotal.WithLabelValues("direct")); got != 1 {
		t.Errorf("undefined_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(sink.nanosPerCall); n != 0 {
		t.Errorf("gauge series = %d, want 0", n)
	}
}

func TestPrometheusSink_RecordError(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	err := sink.RecordError(context.Background(), &ErrorData{
		Component: "experiment",
		Operation: "tagged-switch",
		ErrorType: "call_count_mismatch",
	})
	if err != nil {
		t.Fatalf("RecordError failed: %v", err)
	}
	_ = sink.RecordError(context.Background(), &ErrorData{})

	got := testutil.ToFloat64(sink.errorsTotal.WithLabelValues("experiment", "tagged-switch", "call_count_mismatch"))
	if got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
	got = testutil.ToFloat64(sink.errorsTotal.WithLabelValues("unknown", "unknown", "unknown"))
	if got != 1 {
		t.Errorf("errors_total{unknown} = %v, want 1", got)
	}
}

func TestPrometheusSink_NilInputs(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	//nolint:staticcheck // exercising the nil guard
	if err := sink.RecordMeasurement(nil, sampleMeasurement()); !errors.Is(err, ErrNilContext) {
		t.Errorf("nil ctx error = %v, want ErrNilContext", err)
	}
	if err := sink.RecordMeasurement(context.Background(), nil); !errors.Is(err, ErrNilData) {
		t.Errorf("nil data error = %v, want ErrNilData", err)
	}
	if err := sink.RecordError(context.Background(), nil); !errors.Is(err, ErrNilData) {
		t.Errorf("nil error data = %v, want ErrNilData", err)
	}
}

func TestPrometheusSink_Close(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultPrometheusConfig()
	config.Registry = reg
	sink, err := NewPrometheusSink(config)
	if err != nil {
		t.Fatalf("NewPrometheusSink failed: %v", err)
	}
	_ = sink.RecordMeasurement(context.Background(), sampleMeasurement())

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close error = %v, want nil", err)
	}

	if err := sink.RecordMeasurement(context.Background(), sampleMeasurement()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("after Close error = %v, want ErrSinkClosed", err)
	}
	if err := sink.Flush(context.Background()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Flush after Close error = %v, want ErrSinkClosed", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("registry still has %d families after Close", len(families))
	}
}

func TestPrometheusSink_LabelCardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultPrometheusConfig()
	config.Registry = reg
	config.MaxLabelCardinality = 2
	sink, err := NewPrometheusSink(config)
	if err != nil {
		t.Fatalf("NewPrometheusSink failed: %v", err)
	}
	defer sink.Close()

	for _, name := range []string{"a", "b", "c", "d"} {
		data := sampleMeasurement()
		data.Strategy = name
		_ = sink.RecordMeasurement(context.Background(), data)
	}

	if got := testutil.ToFloat64(sink.callsTotal.WithLabelValues("_other")); got != 10000 {
		t.Errorf("calls_total{_other} = %v, want 10000", got)
	}
}

func TestPrometheusSink_ConcurrentRecords(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = sink.RecordMeasurement(context.Background(), sampleMeasurement())
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(sink.iterationsTotal.WithLabelValues("polymorphic")); got != 2500 {
		t.Errorf("iterations_total = %v, want 2500", got)
	}
}
