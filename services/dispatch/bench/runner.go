// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dispatchperf.bench"

// -----------------------------------------------------------------------------
// Runner Options
// -----------------------------------------------------------------------------

// RunOption configures a run. Options are applied in order, so later
// options override earlier ones.
type RunOption func(*Config)

// WithConfig replaces the whole configuration with a copy of c. Nil is ignored.
func WithConfig(c *Config) RunOption {
	return func(dst *Config) {
		if c != nil {
			*dst = *c
		}
	}
}

// WithIterations sets the number of measured iterations. Non-positive values are ignored.
func WithIterations(n int) RunOption {
	return func(c *Config) {
		if n > 0 {
			c.Iterations = n
		}
	}
}

// WithWarmup sets the number of warm-up iterations. Negative values are ignored.
func WithWarmup(n int) RunOption {
	return func(c *Config) {
		if n >= 0 {
			c.WarmupIterations = n
		}
	}
}

// WithWarmupTime sets the minimum duration of each warm-up iteration.
// Negative values are ignored.
func WithWarmupTime(d time.Duration) RunOption {
	return func(c *Config) {
		if d >= 0 {
			c.WarmupTime = d
		}
	}
}

// WithIterationTime sets the minimum duration of each measured iteration.
// Negative values are ignored.
func WithIterationTime(d time.Duration) RunOption {
	return func(c *Config) {
		if d >= 0 {
			c.IterationTime = d
		}
	}
}

// WithBatch sets the number of traversals between clock reads.
// Non-positive values are ignored.
func WithBatch(n int) RunOption {
	return func(c *Config) {
		if n > 0 {
			c.Batch = n
		}
	}
}

// WithCooldown sets the pause between warm-up and measurement.
// Negative values are ignored.
func WithCooldown(d time.Duration) RunOption {
	return func(c *Config) {
		if d >= 0 {
			c.Cooldown = d
		}
	}
}

// WithOutlierRemoval enables or disables IQR outlier removal.
func WithOutlierRemoval(enabled bool) RunOption {
	return func(c *Config) {
		c.RemoveOutliers = enabled
	}
}

// WithOutlierThreshold sets the IQR multiplier. Non-positive values are ignored.
func WithOutlierThreshold(threshold float64) RunOption {
	return func(c *Config) {
		if threshold > 0 {
			c.OutlierThreshold = threshold
		}
	}
}

// WithCPU pins the measuring thread to cpu. Negative disables pinning.
func WithCPU(cpu int) RunOption {
	return func(c *Config) {
		c.CPU = cpu
	}
}

// WithThreadLock enables or disables locking the measuring goroutine to its thread.
func WithThreadLock(enabled bool) RunOption {
	return func(c *Config) {
		c.LockThread = enabled
	}
}

// -----------------------------------------------------------------------------
// Runner
// -----------------------------------------------------------------------------

// Runner executes the warm-up and measurement protocol for a task.
//
// Description:
//
//	Runner drives a single-threaded, synchronous timing loop. Warm-up
//	iterations run first and are discarded. Each measured iteration reads
//	the monotonic clock around its traversals and contributes one
//	elapsed/calls sample. The reported average is the mean of the samples.
//
// Thread Safety: Safe for concurrent use, though concurrent runs perturb
// each other's timings.
type Runner struct {
	logger *slog.Logger
	clock  func() time.Time
}

// NewRunner creates a new runner that logs to slog.Default().
//
// Outputs:
//   - *Runner: The new runner. Never nil.
func NewRunner() *Runner {
	return &Runner{
		logger: slog.Default(),
		clock:  time.Now,
	}
}

// SetLogger replaces the runner's logger. Nil values are ignored.
func (r *Runner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run executes the timing protocol for one task.
//
// Description:
//
//	Applies the options over DefaultConfig, optionally locks and pins the
//	measuring thread, runs the warm-up iterations, waits out the cooldown,
//	then runs the measured iterations. The context is checked between
//	iterations only; a traversal in progress is never interrupted.
//
// Inputs:
//   - ctx: Context for cancellation and tracing. Must not be nil.
//   - task: The operation to time. Op must not be nil.
//   - opts: Optional configuration options.
//
// Outputs:
//   - *Result: The timing result. NanosPerCall is NaN when task.Calls is 0.
//   - error: Wraps ErrInvalidTask, ErrInvalidConfig, or the context error.
//
// Example:
//
//	result, err := runner.Run(ctx, bench.Task{Name: "polymorphic", Calls: 1000, Op: op},
//	    bench.WithWarmup(5),
//	    bench.WithIterations(5),
//	)
//	if err != nil {
//	    return fmt.Errorf("timing polymorphic: %w", err)
//	}
func (r *Runner) Run(ctx context.Context, task Task, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "bench.Runner.Run",
		trace.WithAttributes(
			attribute.String("bench.task", task.Name),
			attribute.Int("bench.calls", task.Calls),
		),
	)
	defer span.End()

	if err := task.validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid task")
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid config")
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	span.SetAttributes(
		attribute.Int("bench.warmup_iterations", config.WarmupIterations),
		attribute.Int("bench.iterations", config.Iterations),
		attribute.Int("bench.batch", config.Batch),
		attribute.Int("bench.cpu", config.CPU),
	)

	if task.Calls == 0 {
		r.logger.Debug("empty task, average undefined",
			slog.String("task", task.Name),
		)
		span.SetStatus(codes.Ok, "empty task")
		return &Result{
			Name:         task.Name,
			NanosPerCall: math.NaN(),
			Timestamp:    time.Now().UnixMilli(),
			Config:       config,
		}, nil
	}

	if config.LockThread || config.CPU >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	if config.CPU >= 0 {
		restore, err := pinCPU(config.CPU)
		if err != nil {
			r.logger.Warn("cpu pinning failed, continuing unpinned",
				slog.String("task", task.Name),
				slog.Int("cpu", config.CPU),
				slog.String("error", err.Error()),
			)
		} else {
			defer restore()
		}
	}

	if err := r.runWarmup(ctx, task, config); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "warmup interrupted")
		return nil, fmt.Errorf("running warmup: %w", err)
	}

	if config.Cooldown > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cooldown interrupted: %w", ctx.Err())
		case <-time.After(config.Cooldown):
		}
	}

	samples, traversals, total, err := r.runMeasurement(ctx, task, config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "measurement interrupted")
		return nil, fmt.Errorf("running measurement: %w", err)
	}

	result := r.buildResult(task, samples, traversals, total, config)

	span.SetAttributes(
		attribute.Int64("bench.result.traversals", result.Traversals),
		attribute.Float64("bench.result.ns_per_call", result.NanosPerCall),
	)
	span.SetStatus(codes.Ok, "benchmark completed")

	return result, nil
}

// runWarmup executes and discards the warm-up iterations.
func (r *Runner) runWarmup(ctx context.Context, task Task, config *Config) error {
	for i := 0; i < config.WarmupIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.runIteration(task.Op, config.Batch, config.WarmupTime)
	}
	return nil
}

// runMeasurement executes the measured iterations and returns per-iteration
// ns/call samples.
func (r *Runner) runMeasurement(ctx context.Context, task Task, config *Config) ([]float64, int64, time.Duration, error) {
	samples := make([]float64, 0, config.Iterations)
	var traversals int64
	var total time.Duration

	for i := 0; i < config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		elapsed, n := r.runIteration(task.Op, config.Batch, config.IterationTime)
		traversals += n
		total += elapsed
		samples = append(samples, float64(elapsed.Nanoseconds())/(float64(n)*float64(task.Calls)))
	}
	return samples, traversals, total, nil
}

// runIteration runs batches of op until budget has elapsed, with at least
// one batch. It returns the elapsed time and the number of traversals.
func (r *Runner) runIteration(op func(), batch int, budget time.Duration) (time.Duration, int64) {
	var n int64
	start := r.clock()
	for {
		for j := 0; j < batch; j++ {
			op()
		}
		n += int64(batch)
		elapsed := r.clock().Sub(start)
		if elapsed >= budget {
			return elapsed, n
		}
	}
}

// buildResult constructs the Result from collected samples.
func (r *Runner) buildResult(task Task, samples []float64, traversals int64, total time.Duration, config *Config) *Result {
	result := &Result{
		Name:          task.Name,
		Calls:         task.Calls,
		Iterations:    len(samples),
		Traversals:    traversals,
		TotalDuration: total,
		RawSamples:    samples,
		Samples:       samples,
		Timestamp:     time.Now().UnixMilli(),
		Config:        config,
	}

	if config.RemoveOutliers && len(samples) >= 4 {
		result.Samples = RemoveOutliers(samples, config.OutlierThreshold)
		if removed := len(samples) - len(result.Samples); removed > 0 {
			r.logger.Debug("outliers removed from benchmark",
				slog.String("task", task.Name),
				slog.Int("original_count", len(samples)),
				slog.Int("removed_count", removed),
			)
		}
	}

	result.NanosPerCall = Mean(result.Samples)
	if stats, err := CalculateStats(result.Samples); err == nil {
		result.Stats = stats
	}

	r.logger.Debug("benchmark completed",
		slog.String("task", task.Name),
		slog.Int("iterations", result.Iterations),
		slog.Int64("traversals", result.Traversals),
		slog.Float64("ns_per_call", result.NanosPerCall),
	)

	return result
}
