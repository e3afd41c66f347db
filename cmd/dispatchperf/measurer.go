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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/AleutianAI/dispatchperf/cmd/dispatchperf/config"
	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
)

// stderrTail bounds the child stderr kept in a CommandError.
const stderrTail = 4096

// measurer produces one result per configuration and fork.
type measurer interface {
	Measure(ctx context.Context, cfg experiment.Configuration, fork int) (*experiment.Result, error)
}

// newMeasurer measures in-process when cfg.Forks is 0 and in child
// processes otherwise.
func (c *cli) newMeasurer(cfg config.HarnessConfig, runID string, sink telemetry.Sink, logger *slog.Logger) (measurer, error) {
	if cfg.Forks == 0 {
		runner := bench.NewRunner()
		runner.SetLogger(logger)
		return &inProcessMeasurer{
			executor: experiment.NewExecutor(
				experiment.WithRunner(runner),
				experiment.WithSink(sink),
				experiment.WithLogger(logger),
				experiment.WithRunID(runID),
			),
			opts: benchOptions(cfg),
		}, nil
	}

	exe, err := c.executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable for forks: %w", err)
	}
	return &forkMeasurer{
		executable: exe,
		args:       childArgs(cfg),
		env:        c.childEnv,
		runID:      runID,
		stderr:     c.stderr,
		sink:       sink,
		logger:     logger,
	}, nil
}

// inProcessMeasurer measures in the calling goroutine.
type inProcessMeasurer struct {
	executor *experiment.Executor
	opts     []bench.RunOption
}

func (m *inProcessMeasurer) Measure(ctx context.Context, cfg experiment.Configuration, _ int) (*experiment.Result, error) {
	return m.executor.Execute(ctx, cfg, m.opts...)
}

// forkMeasurer re-executes the binary with the hidden measure command, one
// fresh process per configuration and fork. The child writes one JSON
// record line to stdout; its stderr is forwarded and kept for errors.
type forkMeasurer struct {
	executable string
	args       []string
	env        []string
	runID      string
	stderr     io.Writer
	sink       telemetry.Sink
	logger     *slog.Logger
}

func (m *forkMeasurer) Measure(ctx context.Context, cfg experiment.Configuration, fork int) (*experiment.Result, error) {
	args := append([]string{
		"measure",
		"--size", strconv.Itoa(cfg.Size),
		"--workers", strconv.Itoa(cfg.NumWorkers),
		"--strategy", cfg.Strategy,
		"--fork", strconv.Itoa(fork),
		"--run-id", m.runID,
	}, m.args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.executable, args...)
	cmd.Env = append(os.Environ(), m.env...)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, m.stderr)

	m.logger.Debug("forking child",
		slog.String("config", cfg.String()),
		slog.Int("fork", fork),
	)

	name := fmt.Sprintf("measure %s fork %d", cfg, fork)
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		cmdErr := NewCommandError(name, code, tail(stderr.String(), stderrTail), err)
		m.recordError(ctx, cfg, cmdErr)
		return nil, cmdErr
	}

	result, err := decodeResult(stdout.Bytes())
	if err != nil {
		cmdErr := NewCommandError(name, 0, tail(stderr.String(), stderrTail), err)
		m.recordError(ctx, cfg, cmdErr)
		return nil, cmdErr
	}
	if result.Configuration != cfg {
		return nil, NewCommandError(name, 0, "",
			fmt.Errorf("child measured %s", result.Configuration))
	}

	if err := m.sink.RecordMeasurement(ctx, result.Measurement()); err != nil {
		m.logger.Warn("recording measurement failed",
			slog.String("config", cfg.String()),
			slog.String("error", err.Error()),
		)
	}
	return result, nil
}

func (m *forkMeasurer) recordError(ctx context.Context, cfg experiment.Configuration, err error) {
	if recErr := m.sink.RecordError(ctx, &telemetry.ErrorData{
		Timestamp: time.Now(),
		Component: "fork",
		Operation: cfg.Strategy,
		ErrorType: "child_failed",
		Message:   err.Error(),
	}); recErr != nil {
		m.logger.Warn("recording error failed",
			slog.String("config", cfg.String()),
			slog.String("error", recErr.Error()),
		)
	}
}

// childArgs passes the resolved timing and logging settings to a child.
// Children never read a configuration file.
func childArgs(cfg config.HarnessConfig) []string {
	args := []string{
		"--warmup", strconv.Itoa(cfg.Warmup.Iterations),
		"--warmup-time", cfg.Warmup.Time.String(),
		"--iterations", strconv.Itoa(cfg.Measurement.Iterations),
		"--iteration-time", cfg.Measurement.Time.String(),
		"--batch", strconv.Itoa(cfg.Measurement.Batch),
		"--cooldown", cfg.Measurement.Cooldown.String(),
		"--remove-outliers=" + strconv.FormatBool(cfg.Measurement.RemoveOutliers),
		"--outlier-threshold", strconv.FormatFloat(cfg.Measurement.OutlierThreshold, 'g', -1, 64),
		"--cpu", strconv.Itoa(cfg.CPU),
		"--log-level", cfg.Log.Level,
		"--personality", "machine",
	}
	if cfg.Log.JSON {
		args = append(args, "--log-json")
	}
	return args
}

// encodeResult is the child side of the fork protocol.
func encodeResult(w io.Writer, r *experiment.Result) error {
	data, err := sonic.Marshal(r.Record())
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// decodeResult reads the last non-empty line of a child's stdout.
func decodeResult(out []byte) (*experiment.Result, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if line == "" {
		return nil, errors.New("child wrote no result")
	}
	var rec experiment.Record
	if err := sonic.UnmarshalString(line, &rec); err != nil {
		return nil, fmt.Errorf("decoding child result: %w", err)
	}
	return rec.Result(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
