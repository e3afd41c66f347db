// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports dispatch measurements to Prometheus and
// OpenTelemetry and initializes the OpenTelemetry providers.
//
// Recording happens after a measurement completes, never inside a timed
// region.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil data is passed to a record method.
	ErrNilData = errors.New("data must not be nil")

	// ErrSinkClosed is returned when recording to a closed sink.
	ErrSinkClosed = errors.New("sink has been closed")

	// ErrNoSinks is returned when creating a MultiSink without sinks.
	ErrNoSinks = errors.New("at least one sink is required")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// -----------------------------------------------------------------------------
// Sink Interface
// -----------------------------------------------------------------------------

// Sink receives measurement telemetry.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sink interface {
	// RecordMeasurement records the outcome of one measured configuration.
	RecordMeasurement(ctx context.Context, data *MeasurementData) error

	// RecordError records a failed configuration or verifier property.
	RecordError(ctx context.Context, data *ErrorData) error

	// Flush pushes buffered data, if any.
	Flush(ctx context.Context) error

	// Close releases resources. Further records return ErrSinkClosed.
	Close() error
}

// MeasurementData describes one measured configuration.
type MeasurementData struct {
	// Strategy is the dispatch strategy name.
	Strategy string

	// NumWorkers is the number of distinct variants in the workload.
	NumWorkers int

	// Size is the number of slots in the workload.
	Size int

	// NanosPerCall is the mean time per call. Meaningless when Defined is false.
	NanosPerCall float64

	// Defined is false for empty workloads.
	Defined bool

	// Iterations is the number of measured iterations.
	Iterations int

	// Calls is the total number of measured Compute calls.
	Calls int64

	// Samples holds per-iteration ns/call values.
	Samples []float64

	// Duration is the measured wall-clock time.
	Duration time.Duration

	// RunID groups measurements of one invocation.
	RunID string

	// Timestamp is when the measurement finished.
	Timestamp time.Time
}

// ErrorData describes a failure.
type ErrorData struct {
	Timestamp time.Time

	// Component is the failing subsystem (e.g., "experiment", "correctness").
	Component string

	// Operation is the failing operation (e.g., a strategy or property name).
	Operation string

	// ErrorType is a short machine-readable category.
	ErrorType string

	Message string
}

// -----------------------------------------------------------------------------
// Multi Sink
// -----------------------------------------------------------------------------

// MultiSink fans telemetry out to several sinks.
//
// Description:
//
//	Every record call is forwarded to all sinks. Failures are collected
//	and joined; one failing sink does not stop the others.
//
// Thread Safety: Safe for concurrent use.
type MultiSink struct {
	sinks  []Sink
	mu     sync.RWMutex
	closed bool
}

// NewMultiSink creates a sink that forwards to the given sinks.
//
// Inputs:
//   - sinks: Sinks to forward to. Nil entries are skipped.
//
// Outputs:
//   - *MultiSink: The fan-out sink.
//   - error: ErrNoSinks if no non-nil sink was given.
func NewMultiSink(sinks ...Sink) (*MultiSink, error) {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSinks
	}
	return &MultiSink{sinks: valid}, nil
}

func (m *MultiSink) snapshot() ([]Sink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrSinkClosed
	}
	return m.sinks, nil
}

// RecordMeasurement forwards to every sink.
func (m *MultiSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	sinks, err := m.snapshot()
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range sinks {
		if err := s.RecordMeasurement(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordError forwards to every sink.
func (m *MultiSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	sinks, err := m.snapshot()
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range sinks {
		if err := s.RecordError(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes all sinks in parallel.
func (m *MultiSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	sinks, err := m.snapshot()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(sinks))
	for _, s := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Flush(ctx); err != nil {
				errChan <- err
			}
		}(s)
	}
	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes all sinks. Idempotent.
func (m *MultiSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sinks := m.sinks
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Nop Sink
// -----------------------------------------------------------------------------

// NopSink discards all telemetry. It still validates its inputs.
type NopSink struct{}

// NewNopSink creates a sink that discards everything.
func NewNopSink() *NopSink {
	return &NopSink{}
}

// RecordMeasurement discards data.
func (NopSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return nil
}

// RecordError discards data.
func (NopSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	return nil
}

// Flush does nothing.
func (NopSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// Close does nothing.
func (NopSink) Close() error {
	return nil
}

var (
	_ Sink = (*MultiSink)(nil)
	_ Sink = (*NopSink)(nil)
)
