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
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrInvalidConfig is returned when the Prometheus configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace.
	// Required. Default: "dispatchperf"
	Namespace string

	// Subsystem is the metrics subsystem.
	// Required. Default: "bench"
	Subsystem string

	// Registry is the Prometheus registry to use.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// SampleBuckets defines histogram buckets for per-iteration ns/call samples.
	// If nil, uses default buckets.
	SampleBuckets []float64

	// MaxLabelCardinality is the maximum number of unique values tracked per
	// label. Values beyond it are mapped to "_other".
	// Default: 1000
	MaxLabelCardinality int
}

// DefaultPrometheusConfig returns a configuration with sensible defaults.
//
// Example:
//
//	config := telemetry.DefaultPrometheusConfig()
//	config.Registry = prometheus.NewRegistry()
//	sink, err := telemetry.NewPrometheusSink(config)
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "dispatchperf",
		Subsystem: "bench",
		SampleBuckets: []float64{
			0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256,
		},
		MaxLabelCardinality: 1000,
	}
}

// Validate checks that required fields are set.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exports measurements as Prometheus metrics.
//
// Description:
//
//	The headline metric is the gauge
//	dispatchperf_bench_nanos_per_call{strategy,workers,size}. Counters track
//	measured iterations and calls per strategy, a histogram collects the
//	per-iteration samples, and undefined (empty) measurements are counted
//	instead of setting the gauge. Metrics are registered on creation and
//	unregistered on Close when the registry supports it.
//
// Thread Safety: Safe for concurrent use.
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	nanosPerCall    *prometheus.GaugeVec
	iterationsTotal *prometheus.CounterVec
	callsTotal      *prometheus.CounterVec
	samples         *prometheus.HistogramVec
	undefinedTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec

	mu     sync.RWMutex
	closed bool

	collectors []prometheus.Collector

	labelMu        sync.RWMutex
	seenLabels     map[string]map[string]struct{}
	maxCardinality int
}

// NewPrometheusSink creates and registers the dispatch metrics.
//
// Inputs:
//   - config: Prometheus configuration. Must not be nil.
//
// Outputs:
//   - *PrometheusSink: The created sink. Never nil on success.
//   - error: Wraps ErrInvalidConfig or ErrRegistrationFailed.
//
// Assumptions:
//   - Collectors already registered under the same descriptors are reused.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	if cfg.SampleBuckets == nil {
		cfg.SampleBuckets = DefaultPrometheusConfig().SampleBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	maxCard := cfg.MaxLabelCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	s := &PrometheusSink{
		config:         &cfg,
		registry:       registry,
		seenLabels:     make(map[string]map[string]struct{}),
		maxCardinality: maxCard,
	}

	s.nanosPerCall = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "nanos_per_call",
			Help:      "Mean nanoseconds per Compute call for the last measurement",
		},
		[]string{"strategy", "workers", "size"},
	)

	s.iterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "iterations_total",
			Help:      "Total measured iterations",
		},
		[]string{"strategy"},
	)

	s.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calls_total",
			Help:      "Total measured Compute calls",
		},
		[]string{"strategy"},
	)

	s.samples = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sample_nanos_per_call",
			Help:      "Per-iteration nanoseconds per call",
			Buckets:   cfg.SampleBuckets,
		},
		[]string{"strategy"},
	)

	s.undefinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "undefined_total",
			Help:      "Measurements of empty workloads with no defined average",
		},
		[]string{"strategy"},
	)

	s.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "errors_total",
			Help:      "Total errors by component, operation, and type",
		},
		[]string{"component", "operation", "error_type"},
	)

	var err error
	if s.nanosPerCall, err = register(registry, s.nanosPerCall); err != nil {
		return nil, err
	}
	if s.iterationsTotal, err = register(registry, s.iterationsTotal); err != nil {
		return nil, err
	}
	if s.callsTotal, err = register(registry, s.callsTotal); err != nil {
		return nil, err
	}
	if s.samples, err = register(registry, s.samples); err != nil {
		return nil, err
	}
	if s.undefinedTotal, err = register(registry, s.undefinedTotal); err != nil {
		return nil, err
	}
	if s.errorsTotal, err = register(registry, s.errorsTotal); err != nil {
		return nil, err
	}

	s.collectors = []prometheus.Collector{
		s.nanosPerCall,
		s.iterationsTotal,
		s.callsTotal,
		s.samples,
		s.undefinedTotal,
		s.errorsTotal,
	}

	return s, nil
}

// register registers c, or returns the collector already registered under
// the same descriptor so that sinks sharing a registry update the same series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var alreadyErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyErr) {
			if existing, ok := alreadyErr.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Join(ErrRegistrationFailed, err)
	}
	return c, nil
}

// RecordMeasurement records one measured configuration.
//
// Description:
//
//	Sets the ns/call gauge, adds iterations and calls, and observes each
//	sample. Undefined measurements only increment undefined_total.
//
// Outputs:
//   - error: Non-nil if the sink is closed or inputs are nil.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordMeasurement(ctx context.Context, data *MeasurementData) error {
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

	strategy := data.Strategy
	if strategy == "" {
		strategy = "unknown"
	}
	strategy = s.sanitizeLabel("strategy", strategy)

	if !data.Defined {
		s.undefinedTotal.WithLabelValues(strategy).Inc()
		return nil
	}

	workers := strconv.Itoa(data.NumWorkers)
	size := s.sanitizeLabel("size", strconv.Itoa(data.Size))

	s.nanosPerCall.WithLabelValues(strategy, workers, size).Set(data.NanosPerCall)
	s.iterationsTotal.WithLabelValues(strategy).Add(float64(data.Iterations))
	s.callsTotal.WithLabelValues(strategy).Add(float64(data.Calls))

	observer := s.samples.WithLabelValues(strategy)
	for _, v := range data.Samples {
		observer.Observe(v)
	}

	return nil
}

// RecordError increments the error counter.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordError(ctx context.Context, data *ErrorData) error {
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

	s.errorsTotal.WithLabelValues(
		s.sanitizeLabel("component", orUnknown(data.Component)),
		s.sanitizeLabel("operation", orUnknown(data.Operation)),
		s.sanitizeLabel("error_type", orUnknown(data.ErrorType)),
	).Inc()

	return nil
}

// Flush is a no-op; Prometheus metrics are pull-based.
func (s *PrometheusSink) Flush(ctx context.Context) error {
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

// Close unregisters all collectors from a *prometheus.Registry.
// The default registerer is left untouched. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if reg, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			reg.Unregister(c)
		}
	}
	return nil
}

// sanitizeLabel maps label values beyond MaxLabelCardinality to "_other".
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) sanitizeLabel(labelName, labelValue string) string {
	s.labelMu.RLock()
	seen := s.seenLabels[labelName]
	if seen != nil {
		if _, exists := seen[labelValue]; exists {
			s.labelMu.RUnlock()
			return labelValue
		}
		if len(seen) >= s.maxCardinality {
			s.labelMu.RUnlock()
			return "_other"
		}
	}
	s.labelMu.RUnlock()

	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	if s.seenLabels[labelName] == nil {
		s.seenLabels[labelName] = make(map[string]struct{})
	}
	if _, exists := s.seenLabels[labelName][labelValue]; exists {
		return labelValue
	}
	if len(s.seenLabels[labelName]) >= s.maxCardinality {
		return "_other"
	}

	s.seenLabels[labelName][labelValue] = struct{}{}
	return labelValue
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

var _ Sink = (*PrometheusSink)(nil)
