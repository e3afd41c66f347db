// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/AleutianAI/dispatchperf/pkg/ux"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
)

// buildReport converts aggregated results to report rows, comparing against
// the direct strategy.
func buildReport(results []*experiment.Result, runID string) ux.Report {
	rows := make([]ux.ReportRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ux.ReportRow{
			Strategy:     r.Configuration.Strategy,
			NumWorkers:   r.Configuration.NumWorkers,
			Size:         r.Configuration.Size,
			NanosPerCall: r.NanosPerCall,
			StdDev:       r.Stats.StdDev,
			Iterations:   r.Iterations,
			Calls:        r.Calls,
			Forks:        r.Forks,
		})
	}
	return ux.Report{
		Title:    "Dispatch overhead (mean ns/call)",
		RunID:    runID,
		Baseline: strategy.Direct,
		Rows:     rows,
	}
}

// writeRecords writes one JSON record per line.
func writeRecords(w io.Writer, results []*experiment.Result) error {
	enc := sonic.ConfigDefault.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r.Record()); err != nil {
			return fmt.Errorf("encoding %s: %w", r.Configuration, err)
		}
	}
	return nil
}
