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
	"errors"
	"math"
	"sort"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoSamples indicates that no samples were collected.
	ErrNoSamples = errors.New("no samples collected")

	// ErrInvalidConfig indicates an invalid timing configuration.
	ErrInvalidConfig = errors.New("invalid benchmark configuration")

	// ErrInvalidTask indicates a task without an operation or with a negative call count.
	ErrInvalidTask = errors.New("invalid benchmark task")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds timing protocol configuration.
//
// Description:
//
//	An iteration is Batch consecutive traversals. When a time budget is set,
//	the iteration repeats batches until the budget has elapsed, so one
//	iteration covers a fixed wall-clock window rather than a fixed number of
//	traversals. Warm-up iterations are timed the same way but discarded.
//
// Thread Safety: Safe for concurrent read access after initialization.
type Config struct {
	// WarmupIterations is the number of discarded iterations before measurement.
	// Default: 5
	WarmupIterations int

	// WarmupTime is the minimum wall-clock time of each warm-up iteration.
	// Default: 0 (Batch traversals only)
	WarmupTime time.Duration

	// Iterations is the number of measured iterations.
	// Default: 5
	Iterations int

	// IterationTime is the minimum wall-clock time of each measured iteration.
	// Default: 0 (Batch traversals only)
	IterationTime time.Duration

	// Batch is the number of traversals between clock reads.
	// Default: 1
	Batch int

	// Cooldown is the pause between warm-up and measurement.
	// Default: 0
	Cooldown time.Duration

	// RemoveOutliers drops IQR outliers before averaging.
	// Default: false
	RemoveOutliers bool

	// OutlierThreshold is the IQR multiplier for outlier detection.
	// Default: 1.5
	OutlierThreshold float64

	// LockThread wires the measuring goroutine to its OS thread.
	// Default: true
	LockThread bool

	// CPU pins the measuring thread to one core. Negative disables pinning.
	// Pinning implies LockThread. Linux only; ignored elsewhere.
	// Default: -1
	CPU int
}

// DefaultConfig returns a configuration with default values.
//
// Outputs:
//   - *Config: Configuration with default values. Never nil.
func DefaultConfig() *Config {
	return &Config{
		WarmupIterations: 5,
		Iterations:       5,
		Batch:            1,
		OutlierThreshold: 1.5,
		LockThread:       true,
		CPU:              -1,
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if configuration is invalid, with message indicating
//     which field failed validation.
func (c *Config) Validate() error {
	if c.Iterations <= 0 {
		return errors.New("iterations must be positive")
	}
	if c.WarmupIterations < 0 {
		return errors.New("warmup iterations must be non-negative")
	}
	if c.Batch <= 0 {
		return errors.New("batch must be positive")
	}
	if c.WarmupTime < 0 || c.IterationTime < 0 || c.Cooldown < 0 {
		return errors.New("durations must be non-negative")
	}
	if c.OutlierThreshold <= 0 {
		return errors.New("outlier threshold must be positive")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Task
// -----------------------------------------------------------------------------

// Task is one timed operation.
type Task struct {
	// Name labels the task in logs and spans.
	Name string

	// Calls is the number of measured calls one Op invocation performs.
	Calls int

	// Op performs one traversal.
	Op func()
}

func (t Task) validate() error {
	if t.Op == nil {
		return errors.New("task operation must not be nil")
	}
	if t.Calls < 0 {
		return errors.New("task calls must be non-negative")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Result holds the outcome of a timed run.
//
// Description:
//
//	NanosPerCall is the arithmetic mean of the per-iteration samples, each
//	sample being the iteration's elapsed time divided by the calls it made.
//	A task with zero calls has no defined average: NanosPerCall is NaN and
//	no samples are recorded.
//
// Thread Safety: Safe for concurrent read access after creation.
type Result struct {
	// Name is the task name.
	Name string

	// Calls is the number of calls per traversal.
	Calls int

	// Iterations is the number of measured iterations.
	Iterations int

	// Traversals is the number of measured traversals across all iterations.
	Traversals int64

	// TotalDuration is the measured wall-clock time across all iterations.
	TotalDuration time.Duration

	// NanosPerCall is the mean time per call in nanoseconds, or NaN.
	NanosPerCall float64

	// Stats summarizes Samples.
	Stats Stats

	// RawSamples holds per-iteration ns/call before outlier removal.
	RawSamples []float64

	// Samples holds the per-iteration ns/call used for NanosPerCall.
	Samples []float64

	// Timestamp is when the run finished (Unix milliseconds UTC).
	Timestamp int64

	// Config is the configuration used.
	Config *Config
}

// Defined reports whether NanosPerCall holds a number.
func (r *Result) Defined() bool {
	return !math.IsNaN(r.NanosPerCall)
}

// TotalCalls returns the number of measured calls.
func (r *Result) TotalCalls() int64 {
	return r.Traversals * int64(r.Calls)
}

// Stats holds summary statistics over ns/call samples.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
	P90    float64
	P99    float64
}

// -----------------------------------------------------------------------------
// Statistics Functions
// -----------------------------------------------------------------------------

// CalculateStats computes summary statistics from samples.
//
// Description:
//
//	Computes min, max, mean, median, population standard deviation, and
//	the 90th and 99th percentiles. Percentiles use linear interpolation.
//
// Inputs:
//   - samples: Per-iteration ns/call values. Must not be empty.
//
// Outputs:
//   - Stats: Computed statistics.
//   - error: ErrNoSamples if samples is empty.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func CalculateStats(samples []float64) (Stats, error) {
	if len(samples) == 0 {
		return Stats{}, ErrNoSamples
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	stats := Stats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   Mean(samples),
		Median: percentile(sorted, 0.5),
		P90:    percentile(sorted, 0.9),
		P99:    percentile(sorted, 0.99),
	}

	var sumSquaredDiff float64
	for _, s := range samples {
		diff := s - stats.Mean
		sumSquaredDiff += diff * diff
	}
	stats.StdDev = math.Sqrt(sumSquaredDiff / float64(len(samples)))

	return stats, nil
}

// Mean returns the arithmetic mean of samples, or NaN when there are none.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// percentile calculates the p-th percentile of sorted samples using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// RemoveOutliers removes outliers using the IQR method.
//
// Description:
//
//	Values outside [Q1 - threshold*IQR, Q3 + threshold*IQR] are removed.
//	Fewer than four samples are returned unchanged, and so is the input
//	when filtering would discard more than half of it.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func RemoveOutliers(samples []float64, threshold float64) []float64 {
	if len(samples) < 4 {
		return samples
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1

	lowerBound := q1 - threshold*iqr
	upperBound := q3 + threshold*iqr

	var filtered []float64
	for _, s := range samples {
		if s >= lowerBound && s <= upperBound {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) < len(samples)/2 {
		return samples
	}

	return filtered
}
