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
	"math"
	"time"

	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
)

// Result is the measurement of one configuration.
//
// Description:
//
//	NanosPerCall is NaN for an empty workload; use Defined before reading
//	it. Digest is the sink digest of one traversal, which identifies the
//	exact call sequence and is identical across forks of the same
//	configuration.
type Result struct {
	Configuration Configuration

	// NanosPerCall is the mean time per call, or NaN.
	NanosPerCall float64

	// Iterations is the number of measured iterations.
	Iterations int

	// Calls is the number of measured Compute calls.
	Calls int64

	// Digest is the sink digest of a single traversal.
	Digest uint64

	// Stats summarizes Samples. Zero when undefined.
	Stats bench.Stats

	// Samples holds per-iteration ns/call values.
	Samples []float64

	// Duration is the measured wall-clock time.
	Duration time.Duration

	// RunID identifies the invocation that produced the result.
	RunID string

	// Fork is the 1-based fork index, or 0 when measured in-process.
	Fork int

	// Forks is the number of fork results merged into this one.
	Forks int

	Timestamp time.Time
}

// Defined reports whether NanosPerCall holds a number.
func (r *Result) Defined() bool {
	return !math.IsNaN(r.NanosPerCall)
}

// Undefined reports whether the average is undefined (empty workload).
func (r *Result) Undefined() bool {
	return !r.Defined()
}

// Record is the serialized form of a Result.
//
// JSON has no NaN, so an undefined average is encoded as a null
// nanos_per_call together with undefined=true.
type Record struct {
	Size         int          `json:"size"`
	NumWorkers   int          `json:"num_workers"`
	Strategy     string       `json:"strategy"`
	NanosPerCall *float64     `json:"nanos_per_call"`
	Undefined    bool         `json:"undefined"`
	Iterations   int          `json:"iterations"`
	Calls        int64        `json:"calls"`
	Digest       uint64       `json:"digest"`
	Stats        *StatsRecord `json:"stats,omitempty"`
	Samples      []float64    `json:"samples,omitempty"`
	DurationNs   int64        `json:"duration_ns"`
	RunID        string       `json:"run_id,omitempty"`
	Fork         int          `json:"fork"`
	Forks        int          `json:"forks"`
	Timestamp    int64        `json:"timestamp_ms"`
}

// StatsRecord is the serialized form of bench.Stats.
type StatsRecord struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Record converts the result to its serialized form.
func (r *Result) Record() Record {
	rec := Record{
		Size:       r.Configuration.Size,
		NumWorkers: r.Configuration.NumWorkers,
		Strategy:   r.Configuration.Strategy,
		Undefined:  r.Undefined(),
		Iterations: r.Iterations,
		Calls:      r.Calls,
		Digest:     r.Digest,
		Samples:    r.Samples,
		DurationNs: r.Duration.Nanoseconds(),
		RunID:      r.RunID,
		Fork:       r.Fork,
		Forks:      r.Forks,
		Timestamp:  r.Timestamp.UnixMilli(),
	}
	if r.Defined() {
		v := r.NanosPerCall
		rec.NanosPerCall = &v
		rec.Stats = &StatsRecord{
			Min:    r.Stats.Min,
			Max:    r.Stats.Max,
			Mean:   r.Stats.Mean,
			Median: r.Stats.Median,
			StdDev: r.Stats.StdDev,
			P90:    r.Stats.P90,
			P99:    r.Stats.P99,
		}
	}
	return rec
}

// Result converts a record back. A missing nanos_per_call or undefined=true
// yields NaN.
func (rec Record) Result() *Result {
	r := &Result{
		Configuration: Configuration{
			Size:       rec.Size,
			NumWorkers: rec.NumWorkers,
			Strategy:   rec.Strategy,
		},
		NanosPerCall: math.NaN(),
		Iterations:   rec.Iterations,
		Calls:        rec.Calls,
		Digest:       rec.Digest,
		Samples:      rec.Samples,
		Duration:     time.Duration(rec.DurationNs),
		RunID:        rec.RunID,
		Fork:         rec.Fork,
		Forks:        rec.Forks,
		Timestamp:    time.UnixMilli(rec.Timestamp),
	}
	if !rec.Undefined && rec.NanosPerCall != nil {
		r.NanosPerCall = *rec.NanosPerCall
	}
	if rec.Stats != nil {
		r.Stats = bench.Stats{
			Min:    rec.Stats.Min,
			Max:    rec.Stats.Max,
			Mean:   rec.Stats.Mean,
			Median: rec.Stats.Median,
			StdDev: rec.Stats.StdDev,
			P90:    rec.Stats.P90,
			P99:    rec.Stats.P99,
		}
	}
	return r
}
