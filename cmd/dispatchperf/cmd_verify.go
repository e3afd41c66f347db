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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/dispatchperf/services/dispatch/correctness"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
)

type verifyOptions struct {
	tags          []string
	parallelism   int
	timeout       time.Duration
	stopOnFailure bool
}

func (c *cli) verifyCmd() *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the workload and strategy invariants",
		Long: `verify runs the correctness properties: round-robin slot tags, bucket
partitioning, call counts, call-sequence equivalence between strategies,
the undefined average of an empty workload, and rejection of invalid
configurations. It exits non-zero if any property fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runVerify(cmd, &opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.tags, "tags", nil, "only run properties with one of these tags")
	f.IntVar(&opts.parallelism, "parallelism", 0, "properties checked concurrently (0 = GOMAXPROCS)")
	f.DurationVar(&opts.timeout, "timeout", time.Minute, "overall verification timeout")
	f.BoolVar(&opts.stopOnFailure, "stop-on-failure", false, "cancel remaining properties after the first failure")
	return cmd
}

func (c *cli) runVerify(cmd *cobra.Command, opts *verifyOptions) error {
	verifier := correctness.NewDefaultVerifier(strategy.DefaultRegistry())

	verifyOpts := []correctness.VerifyOption{
		correctness.WithLogger(c.logger.Slog()),
		correctness.WithTimeout(opts.timeout),
		correctness.WithStopOnFailure(opts.stopOnFailure),
	}
	if opts.parallelism > 0 {
		verifyOpts = append(verifyOpts, correctness.WithParallelism(opts.parallelism))
	}
	if len(opts.tags) > 0 {
		verifyOpts = append(verifyOpts, correctness.WithTags(opts.tags...))
	}

	report, err := verifier.Verify(cmd.Context(), verifyOpts...)
	if errors.Is(err, correctness.ErrNoProperties) {
		return errors.Join(errUsage, err)
	}
	if err != nil {
		return err
	}

	c.printer.Title("Correctness properties")
	for _, p := range report.Properties {
		if p.Passed {
			c.printer.Success(fmt.Sprintf("%s (%s)", p.Name, p.Duration.Round(time.Microsecond)))
			continue
		}
		c.printer.Error(fmt.Sprintf("%s: %v", p.Name, p.Error))
	}
	c.printer.Info(fmt.Sprintf("%d properties, %d failed, %s",
		len(report.Properties), len(report.Failed()), report.Duration.Round(time.Millisecond)))

	return report.Err()
}
