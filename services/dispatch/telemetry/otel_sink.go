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
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "dispatchperf.telemetry"

// OTelSink records measurements as OpenTelemetry metric instruments.
//
// Description:
//
//	Instruments are created from the given meter, or the global meter
//	provider when none is given, so the exporter chosen in Init decides
//	where the data goes.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	nanosPerCall metric.Float64Gauge
	samples      metric.Float64Histogram
	iterations   metric.Int64Counter
	calls        metric.Int64Counter
	undefined    metric.Int64Counter
	errors       metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates the instruments on meter.
//
// Inputs:
//   - meter: The meter to use. Nil uses otel.Meter(meterName).
//
// Outputs:
//   - *OTelSink: The sink.
//   - error: Non-nil if an instrument cannot be created.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	s := &OTelSink{}
	var err error

	s.nanosPerCall, err = meter.Float64Gauge(
		"dispatchperf.nanos_per_call",
		metric.WithDescription("Mean nanoseconds per Compute call"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, fmt.Errorf("create nanos_per_call gauge: %w", err)
	}

	s.samples, err = meter.Float64Histogram(
		"dispatchperf.sample.nanos_per_call",
		metric.WithDescription("Per-iteration nanoseconds per call"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sample histogram: %w", err)
	}

	s.iterations, err = meter.Int64Counter(
		"dispatchperf.iterations",
		metric.WithDescription("Measured iterations"),
	)
	if err != nil {
		return nil, fmt.Errorf("create iterations counter: %w", err)
	}

	s.calls, err = meter.Int64Counter(
		"dispatchperf.calls",
		metric.WithDescription("Measured Compute calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}

	s.undefined, err = meter.Int64Counter(
		"dispatchperf.undefined",
		metric.WithDescription("Measurements with no defined average"),
	)
	if err != nil {
		return nil, fmt.Errorf("create undefined counter: %w", err)
	}

	s.errors, err = meter.Int64Counter(
		"dispatchperf.errors",
		metric.WithDescription("Errors by component and type"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}

	return s, nil
}

// RecordMeasurement records one measured configuration.
func (s *OTelSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	strategyAttr := metric.WithAttributes(attribute.String("strategy", data.Strategy))
	if !data.Defined {
		s.undefined.Add(ctx, 1, strategyAttr)
		return nil
	}

	s.nanosPerCall.Record(ctx, data.NanosPerCall, metric.WithAttributes(
		attribute.String("strategy", data.Strategy),
		attribute.Int("workers", data.NumWorkers),
		attribute.Int("size", data.Size),
	))
	s.iterations.Add(ctx, int64(data.Iterations), strategyAttr)
	s.calls.Add(ctx, data.Calls, strategyAttr)
	for _, v := range data.Samples {
		s.samples.Record(ctx, v, strategyAttr)
	}
	return nil
}

// RecordError increments the error counter.
func (s *OTelSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	s.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", orUnknown(data.Component)),
		attribute.String("operation", orUnknown(data.Operation)),
		attribute.String("error_type", orUnknown(data.ErrorType)),
	))
	return nil
}

// Flush is a no-op; the meter provider owns export. Shut the provider down
// through the function returned by Init.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// Close marks the sink closed. Idempotent.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Sink = (*OTelSink)(nil)
