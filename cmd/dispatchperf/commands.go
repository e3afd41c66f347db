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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/dispatchperf/cmd/dispatchperf/config"
	"github.com/AleutianAI/dispatchperf/pkg/logging"
	"github.com/AleutianAI/dispatchperf/pkg/ux"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
)

const serviceName = "dispatchperf"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitInvalid = 2
)

// errUsage marks a bad flag value that cobra itself cannot detect.
var errUsage = errors.New("invalid usage")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	logLevel    string
	logJSON     bool
	logDir      string
	personality string
}

// cli holds the state of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	opts    globalOptions
	cfg     config.HarnessConfig
	logger  *logging.Logger
	printer *ux.Printer

	// executable locates the binary re-executed for forks.
	executable func() (string, error)

	// childEnv is appended to the environment of forked children.
	childEnv []string
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:     stdout,
		stderr:     stderr,
		cfg:        config.DefaultConfig(),
		printer:    ux.NewPrinter(stdout, stderr),
		executable: os.Executable,
	}
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	return newCLI(stdout, stderr).execute(args)
}

func (c *cli) execute(args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	err := root.Execute()
	c.close()
	if err == nil {
		return exitOK
	}
	c.printer.Error(err.Error())
	return exitCode(err)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, experiment.ErrInvalidConfiguration),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, strategy.ErrNotFound),
		errors.Is(err, errUsage):
		return exitInvalid
	default:
		return exitFailure
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatchperf",
		Short: "Measure the per-call overhead of dynamic dispatch",
		Long: `dispatchperf times ten interchangeable worker variants invoked through
several dispatch strategies (direct, polymorphic, tagged-switch, bucketed, ...)
and reports the mean nanoseconds per call for every configuration.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	f := root.PersistentFlags()
	f.StringVar(&c.opts.configPath, "config", "", "YAML harness configuration file")
	f.StringVar(&c.opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&c.opts.logJSON, "log-json", false, "write logs as JSON")
	f.StringVar(&c.opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	f.StringVar(&c.opts.personality, "personality", "", "output style (full, standard, minimal, machine)")

	root.AddCommand(
		c.runCmd(),
		c.measureCmd(),
		c.verifyCmd(),
		c.listCmd(),
		c.initCmd(),
	)

	// Flag parse errors and rejected positional arguments exit as usage errors.
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Join(errUsage, err)
	})
	for _, sub := range root.Commands() {
		if sub.Args != nil {
			sub.Args = usageArgs(sub.Args)
		}
	}
	return root
}

// usageArgs marks errors from a positional argument validator as usage errors.
func usageArgs(args cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := args(cmd, a); err != nil {
			return errors.Join(errUsage, err)
		}
		return nil
	}
}

// setup loads the configuration file, applies the persistent flags over
// it, and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ux.InitPersonality(c.opts.personality)

	cfg, err := config.Load(c.opts.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = c.opts.logJSON
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir = c.opts.logDir
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Join(errUsage, err)
	}
	c.cfg = cfg

	logCfg := cfg.LoggingConfig(serviceName)
	logCfg.Writer = c.stderr
	c.logger = logging.New(logCfg)
	return nil
}

func (c *cli) close() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

// benchFlags are the timing flags shared by run and measure. Each one
// overrides the configuration only when given explicitly.
type benchFlags struct {
	warmup           int
	warmupTime       time.Duration
	iterations       int
	iterationTime    time.Duration
	batch            int
	cooldown         time.Duration
	removeOutliers   bool
	outlierThreshold float64
	cpu              int
}

func (b *benchFlags) register(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.IntVar(&b.warmup, "warmup", d.Warmup.Iterations, "warm-up iterations")
	f.DurationVar(&b.warmupTime, "warmup-time", d.Warmup.Time, "minimum duration of each warm-up iteration")
	f.IntVar(&b.iterations, "iterations", d.Measurement.Iterations, "measured iterations")
	f.DurationVar(&b.iterationTime, "iteration-time", d.Measurement.Time, "minimum duration of each measured iteration")
	f.IntVar(&b.batch, "batch", d.Measurement.Batch, "traversals between clock reads")
	f.DurationVar(&b.cooldown, "cooldown", d.Measurement.Cooldown, "pause between warm-up and measurement")
	f.BoolVar(&b.removeOutliers, "remove-outliers", d.Measurement.RemoveOutliers, "drop IQR outliers before averaging")
	f.Float64Var(&b.outlierThreshold, "outlier-threshold", d.Measurement.OutlierThreshold, "IQR multiplier for outlier removal")
	f.IntVar(&b.cpu, "cpu", d.CPU, "pin the measuring thread to this CPU (-1 disables)")
}

func (b *benchFlags) apply(cmd *cobra.Command, cfg *config.HarnessConfig) {
	f := cmd.Flags()
	if f.Changed("warmup") {
		cfg.Warmup.Iterations = b.warmup
	}
	if f.Changed("warmup-time") {
		cfg.Warmup.Time = b.warmupTime
	}
	if f.Changed("iterations") {
		cfg.Measurement.Iterations = b.iterations
	}
	if f.Changed("iteration-time") {
		cfg.Measurement.Time = b.iterationTime
	}
	if f.Changed("batch") {
		cfg.Measurement.Batch = b.batch
	}
	if f.Changed("cooldown") {
		cfg.Measurement.Cooldown = b.cooldown
	}
	if f.Changed("remove-outliers") {
		cfg.Measurement.RemoveOutliers = b.removeOutliers
	}
	if f.Changed("outlier-threshold") {
		cfg.Measurement.OutlierThreshold = b.outlierThreshold
	}
	if f.Changed("cpu") {
		cfg.CPU = b.cpu
	}
}
