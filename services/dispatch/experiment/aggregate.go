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
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
)

// ErrDigestMismatch indicates forks of one configuration observed different
// call sequences.
var ErrDigestMismatch = errors.New("fork digests differ")

// Aggregate merges results of the same configuration.
//
// Description:
//
//	Results are grouped by configuration, keeping the order in which each
//	configuration first appears. A group's NanosPerCall is the mean of the
//	per-fork means; an undefined member makes the whole group undefined.
//	Iterations, calls, durations and samples are summed or concatenated,
//	and statistics are recomputed over the merged samples. Nil entries are
//	skipped.
//
// Outputs:
//   - []*Result: One merged result per configuration.
//   - error: Wraps ErrDigestMismatch if members of a group disagree on the
//     call sequence.
func Aggregate(results []*Result) ([]*Result, error) {
	var order []Configuration
	groups := make(map[Configuration][]*Result)
	for _, r := range results {
		if r == nil {
			continue
		}
		if _, ok := groups[r.Configuration]; !ok {
			order = append(order, r.Configuration)
		}
		groups[r.Configuration] = append(groups[r.Configuration], r)
	}

	merged := make([]*Result, 0, len(order))
	for _, cfg := range order {
		m, err := merge(groups[cfg])
		if err != nil {
			return nil, err
		}
		merged = append(merged, m)
	}
	return merged, nil
}

func merge(group []*Result) (*Result, error) {
	first := group[0]
	if len(group) == 1 {
		out := *first
		if out.Forks == 0 {
			out.Forks = 1
		}
		return &out, nil
	}

	out := &Result{
		Configuration: first.Configuration,
		Digest:        first.Digest,
		RunID:         first.RunID,
		Forks:         len(group),
		Timestamp:     first.Timestamp,
	}

	means := make([]float64, 0, len(group))
	defined := true
	for _, r := range group {
		if r.Digest != first.Digest {
			return nil, fmt.Errorf("%w: %s fork %d digest %x, fork %d digest %x",
				ErrDigestMismatch, first.Configuration, first.Fork, first.Digest, r.Fork, r.Digest)
		}
		if !r.Defined() {
			defined = false
		}
		means = append(means, r.NanosPerCall)
		out.Iterations += r.Iterations
		out.Calls += r.Calls
		out.Duration += r.Duration
		out.Samples = append(out.Samples, r.Samples...)
		if r.Timestamp.After(out.Timestamp) {
			out.Timestamp = r.Timestamp
		}
	}

	if !defined {
		out.NanosPerCall = math.NaN()
		return out, nil
	}

	out.NanosPerCall = bench.Mean(means)
	if stats, err := bench.CalculateStats(out.Samples); err == nil {
		out.Stats = stats
	}
	return out, nil
}
