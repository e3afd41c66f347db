// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/sink"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

const tracerName = "dispatchperf.experiment"

// ErrCallCountMismatch indicates a strategy did not invoke Compute exactly
// once per slot.
var ErrCallCountMismatch = errors.New("call count mismatch")

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRegistry sets the strategy registry. Nil is ignored.
func WithRegistry(reg *strategy.Registry) ExecutorOption {
	return func(e *Executor) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithRunner sets the bench runner. Nil is ignored.
func WithRunner(r *bench.Runner) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithSink sets the telemetry sink. Nil is ignored.
func WithSink(s telemetry.Sink) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunID tags every result with id.
func WithRunID(id string) ExecutorOption {
	return func(e *Executor) {
		e.runID = id
	}
}

// WithFork tags every result with the fork index.
func WithFork(fork int) ExecutorOption {
	return func(e *Executor) {
		e.fork = fork
	}
}

// Executor measures configurations in the calling goroutine.
//
// Thread Safety: Safe for concurrent use, but concurrent measurements
// perturb each other.
type Executor struct {
	registry *strategy.Registry
	runner   *bench.Runner
	sink     telemetry.Sink
	logger   *slog.Logger
	runID    string
	fork     int
}

// NewExecutor creates an executor with the default registry, a new runner,
// and a NopSink.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: strategy.DefaultRegistry(),
		runner:   bench.NewRunner(),
		sink:     telemetry.NewNopSink(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the executor's strategy registry.
func (e *Executor) Registry() *strategy.Registry {
	return e.registry
}

// Execute measures one configuration.
//
// Description:
//
//	Validates the configuration, builds the workload once, and times the
//	strategy with the bench runner. Each timed traversal publishes the sink
//	digest. After timing, the call counter is checked against
//	size × traversals, and one extra untimed traversal on a fresh sink
//	produces the result digest. A strategy that hits an unreachable
//	dispatch panics; the panic is not recovered.
//
// Inputs:
//   - ctx: Context for cancellation and tracing. Must not be nil.
//   - cfg: The configuration to measure.
//   - opts: Timing options passed to the bench runner.
//
// Outputs:
//   - *Result: The measurement. NanosPerCall is NaN for size 0.
//   - error: Wraps ErrInvalidConfiguration, ErrCallCountMismatch, or a
//     bench error.
//
// Example:
//
//	result, err := executor.Execute(ctx,
//	    experiment.Configuration{Size: 1000, NumWorkers: 5, Strategy: "polymorphic"},
//	    bench.WithIterations(5),
//	)
func (e *Executor) Execute(ctx context.Context, cfg Configuration, opts ...bench.RunOption) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "experiment.Executor.Execute",
		trace.WithAttributes(
			attribute.String("experiment.strategy", cfg.Strategy),
			attribute.Int("experiment.size", cfg.Size),
			attribute.Int("experiment.num_workers", cfg.NumWorkers),
		),
	)
	defer span.End()

	result, err := e.execute(ctx, cfg, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		e.recordError(ctx, cfg, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("experiment.defined", result.Defined()))
	if result.Defined() {
		span.SetAttributes(attribute.Float64("experiment.ns_per_call", result.NanosPerCall))
	}
	span.SetStatus(codes.Ok, "measured")

	if err := e.sink.RecordMeasurement(ctx, result.Measurement()); err != nil {
		e.logger.Warn("recording measurement failed",
			slog.String("config", cfg.String()),
			slog.String("error", err.Error()),
		)
	}
	return result, nil
}

func (e *Executor) execute(ctx context.Context, cfg Configuration, opts []bench.RunOption) (*Result, error) {
	if err := cfg.Validate(e.registry); err != nil {
		return nil, err
	}
	st := e.registry.MustGet(cfg.Strategy)

	wl, buckets, err := workload.Build(cfg.Size, cfg.NumWorkers)
	if err != nil {
		return nil, err
	}

	bh := sink.New()
	var traversals uint64
	op := func() {
		st.Run(wl, buckets, bh)
		bh.Publish()
		traversals++
	}

	br, err := e.runner.Run(ctx, bench.Task{Name: cfg.String(), Calls: cfg.Size, Op: op}, opts...)
	if err != nil {
		return nil, fmt.Errorf("measuring %s: %w", cfg, err)
	}

	if want := uint64(cfg.Size) * traversals; bh.Calls() != want {
		return nil, fmt.Errorf("%w: %s made %d calls over %d traversals, want %d",
			ErrCallCountMismatch, cfg, bh.Calls(), traversals, want)
	}

	check := sink.New()
	st.Run(wl, buckets, check)
	if check.Calls() != uint64(cfg.Size) {
		return nil, fmt.Errorf("%w: %s made %d calls in one traversal, want %d",
			ErrCallCountMismatch, cfg, check.Calls(), cfg.Size)
	}

	result := &Result{
		Configuration: cfg,
		NanosPerCall:  br.NanosPerCall,
		Iterations:    br.Iterations,
		Calls:         br.TotalCalls(),
		Digest:        check.Digest(),
		Stats:         br.Stats,
		Samples:       br.Samples,
		Duration:      br.TotalDuration,
		RunID:         e.runID,
		Fork:          e.fork,
		Forks:         1,
		Timestamp:     time.Now(),
	}

	e.logger.Info("configuration measured",
		slog.String("strategy", cfg.Strategy),
		slog.Int("size", cfg.Size),
		slog.Int("workers", cfg.NumWorkers),
		slog.Float64("ns_per_call", result.NanosPerCall),
		slog.Bool("defined", result.Defined()),
	)
	return result, nil
}

// ExecuteAll measures configurations in order and stops at the first error.
// Results measured before the error are returned with it.
func (e *Executor) ExecuteAll(ctx context.Context, configs []Configuration, opts ...bench.RunOption) ([]*Result, error) {
	results := make([]*Result, 0, len(configs))
	for _, cfg := range configs {
		r, err := e.Execute(ctx, cfg, opts...)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Executor) recordError(ctx context.Context, cfg Configuration, err error) {
	errType := "execution"
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		errType = "invalid_configuration"
	case errors.Is(err, ErrCallCountMismatch):
		errType = "call_count_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errType = "cancelled"
	}
	if recErr := e.sink.RecordError(ctx, &telemetry.ErrorData{
		Timestamp: time.Now(),
		Component: "experiment",
		Operation: cfg.Strategy,
		ErrorType: errType,
		Message:   err.Error(),
	}); recErr != nil {
		e.logger.Warn("recording error failed",
			slog.String("config", cfg.String()),
			slog.String("error", recErr.Error()),
		)
	}
}

// Measurement converts the result to its telemetry form.
func (r *Result) Measurement() *telemetry.MeasurementData {
	return &telemetry.MeasurementData{
		Strategy:     r.Configuration.Strategy,
		NumWorkers:   r.Configuration.NumWorkers,
		Size:         r.Configuration.Size,
		NanosPerCall: r.NanosPerCall,
		Defined:      r.Defined(),
		Iterations:   r.Iterations,
		Calls:        r.Calls,
		Samples:      r.Samples,
		Duration:     r.Duration,
		RunID:        r.RunID,
		Timestamp:    r.Timestamp,
	}
}
