// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bench implements the warm-up and measurement protocol used to time
// dispatch strategies.
//
// # Overview
//
// A Task is an operation that performs a known number of calls per
// invocation. The Runner warms the task up, optionally pauses, then times a
// fixed number of iterations and reports the mean nanoseconds per call.
//
//	┌────────────────────────────────────────────────────────────────┐
//	│                            Runner                              │
//	├────────────────────────────────────────────────────────────────┤
//	│  lock thread / pin CPU                                         │
//	│         │                                                      │
//	│         ▼                                                      │
//	│  warm-up  ── N × (Batch traversals, until WarmupTime) ──► drop │
//	│         │                                                      │
//	│         ▼                                                      │
//	│  cooldown                                                      │
//	│         │                                                      │
//	│         ▼                                                      │
//	│  measure ── M × (Batch traversals, until IterationTime)        │
//	│         │        sample = elapsed / (traversals × calls)       │
//	│         ▼                                                      │
//	│  Result { NanosPerCall = mean(samples), Stats }                │
//	└────────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	runner := bench.NewRunner()
//	result, err := runner.Run(ctx, bench.Task{Name: "direct", Calls: size, Op: op},
//	    bench.WithWarmup(5),
//	    bench.WithIterations(5),
//	    bench.WithIterationTime(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	if result.Defined() {
//	    fmt.Printf("%.3f ns/call\n", result.NanosPerCall)
//	}
//
// # Thread Safety
//
// The protocol is single-threaded and synchronous. A Runner may be shared,
// but concurrent runs compete for the same cores and skew each other.
package bench
