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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
)

type measureOptions struct {
	bench  benchFlags
	config experiment.Configuration
	fork   int
	runID  string
}

// measureCmd is the child side of a forked run: it measures exactly one
// configuration and writes one JSON record line to stdout.
func (c *cli) measureCmd() *cobra.Command {
	var opts measureOptions
	cmd := &cobra.Command{
		Use:    "measure",
		Short:  "Measure one configuration and print a JSON record",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runMeasure(cmd, &opts)
		},
	}

	opts.bench.register(cmd)
	f := cmd.Flags()
	f.IntVar(&opts.config.Size, "size", 1000, "workload size")
	f.IntVar(&opts.config.NumWorkers, "workers", 1, "worker count (1..10)")
	f.StringVar(&opts.config.Strategy, "strategy", strategy.Polymorphic, "strategy name")
	f.IntVar(&opts.fork, "fork", 0, "fork index reported with the result")
	f.StringVar(&opts.runID, "run-id", "", "run ID reported with the result")
	return cmd
}

func (c *cli) runMeasure(cmd *cobra.Command, opts *measureOptions) error {
	cfg := c.cfg
	opts.bench.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := c.logger.Slog().With(slog.Int("fork", opts.fork))
	runner := bench.NewRunner()
	runner.SetLogger(logger)

	executor := experiment.NewExecutor(
		experiment.WithRunner(runner),
		experiment.WithLogger(logger),
		experiment.WithRunID(opts.runID),
		experiment.WithFork(opts.fork),
	)

	result, err := executor.Execute(cmd.Context(), opts.config, benchOptions(cfg)...)
	if err != nil {
		return err
	}
	return encodeResult(c.stdout, result)
}
