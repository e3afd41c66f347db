// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package correctness checks the workload and dispatch invariants without
// timing anything.
package correctness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrVerificationFailed indicates at least one property failed.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNoProperties indicates nothing was left to verify.
	ErrNoProperties = errors.New("no properties to verify")

	// ErrNilCheck indicates a property without a check function.
	ErrNilCheck = errors.New("property has no check")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Property is one named invariant.
type Property struct {
	// Name identifies the property in reports.
	Name string

	// Description explains what is checked.
	Description string

	// Tags group properties for filtering (e.g., "workload", "strategy").
	Tags []string

	// Check returns nil when the invariant holds.
	Check func(ctx context.Context) error

	// Timeout overrides the per-property timeout when positive.
	Timeout time.Duration
}

// PropertyResult is the outcome of one property.
type PropertyResult struct {
	Name        string
	Description string
	Passed      bool
	Error       error
	Duration    time.Duration
}

// Report is the outcome of a verification run.
type Report struct {
	// Passed is true when every property passed.
	Passed bool

	// Properties holds results in property order.
	Properties []PropertyResult

	Duration time.Duration
}

// Failed returns the failing property results.
func (r *Report) Failed() []PropertyResult {
	var out []PropertyResult
	for _, p := range r.Properties {
		if !p.Passed {
			out = append(out, p)
		}
	}
	return out
}

// Err returns nil for a passing report, otherwise ErrVerificationFailed
// joined with each property error.
func (r *Report) Err() error {
	if r.Passed {
		return nil
	}
	errs := []error{ErrVerificationFailed}
	for _, p := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, p.Error))
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// VerifyOption configures a verification run.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	timeout         time.Duration
	propertyTimeout time.Duration
	parallelism     int
	stopOnFailure   bool
	tags            []string
	logger          *slog.Logger
	sink            telemetry.Sink
}

func defaultConfig() *verifyConfig {
	return &verifyConfig{
		timeout:         5 * time.Minute,
		propertyTimeout: 30 * time.Second,
		parallelism:     runtime.GOMAXPROCS(0),
	}
}

// WithTimeout sets the overall timeout.
func WithTimeout(d time.Duration) VerifyOption {
	return func(c *verifyConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPropertyTimeout sets the default timeout per property.
func WithPropertyTimeout(d time.Duration) VerifyOption {
	return func(c *verifyConfig) {
		if d > 0 {
			c.propertyTimeout = d
		}
	}
}

// WithParallelism limits how many properties run at once.
func WithParallelism(n int) VerifyOption {
	return func(c *verifyConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithStopOnFailure cancels the remaining properties after the first failure.
func WithStopOnFailure(stop bool) VerifyOption {
	return func(c *verifyConfig) {
		c.stopOnFailure = stop
	}
}

// WithTags keeps only properties carrying at least one of tags.
func WithTags(tags ...string) VerifyOption {
	return func(c *verifyConfig) {
		c.tags = tags
	}
}

// WithLogger overrides the verifier's logger for this run.
func WithLogger(logger *slog.Logger) VerifyOption {
	return func(c *verifyConfig) {
		c.logger = logger
	}
}

// WithSink reports failed properties to a telemetry sink.
func WithSink(s telemetry.Sink) VerifyOption {
	return func(c *verifyConfig) {
		c.sink = s
	}
}

// -----------------------------------------------------------------------------
// Verifier
// -----------------------------------------------------------------------------

// Verifier runs a fixed set of properties.
//
// Thread Safety: Safe for concurrent use.
type Verifier struct {
	properties []Property
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewVerifier creates a verifier over properties.
func NewVerifier(properties ...Property) *Verifier {
	return &Verifier{
		properties: properties,
		logger:     slog.Default(),
	}
}

// SetLogger sets the default logger. Nil is ignored.
func (v *Verifier) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logger = logger
}

// Properties returns the verifier's properties.
func (v *Verifier) Properties() []Property {
	out := make([]Property, len(v.properties))
	copy(out, v.properties)
	return out
}

// Verify runs the properties concurrently.
//
// Description:
//
//	Properties run on an errgroup limited to the configured parallelism.
//	Each property gets its own timeout. A failing property never stops
//	the others unless WithStopOnFailure is set, in which case properties
//	that had not started yet report the cancellation. Panics raised by a
//	check are not recovered.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - opts: Verification options.
//
// Outputs:
//   - *Report: Results in property order.
//   - error: ErrNoProperties when nothing matches; otherwise nil, even
//     if properties failed. Use Report.Err for a failure error.
func (v *Verifier) Verify(ctx context.Context, opts ...VerifyOption) (*Report, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	logger := config.logger
	if logger == nil {
		v.mu.RLock()
		logger = v.logger
		v.mu.RUnlock()
	}

	properties := v.properties
	if len(config.tags) > 0 {
		properties = filterByTags(properties, config.tags)
	}
	if len(properties) == 0 {
		return nil, ErrNoProperties
	}

	logger.Debug("starting verification",
		slog.Int("properties", len(properties)),
		slog.Int("parallelism", config.parallelism),
	)

	ctx, cancel := context.WithTimeout(ctx, config.timeout)
	defer cancel()

	start := time.Now()
	results := make([]PropertyResult, len(properties))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(config.parallelism)

	for i, prop := range properties {
		g.Go(func() error {
			results[i] = v.verifyProperty(gCtx, prop, config)
			if !results[i].Passed && config.stopOnFailure {
				return fmt.Errorf("%s: %w", prop.Name, ErrVerificationFailed)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Passed:     true,
		Properties: results,
		Duration:   time.Since(start),
	}
	for _, r := range results {
		if r.Passed {
			continue
		}
		report.Passed = false
		logger.Warn("property failed",
			slog.String("property", r.Name),
			slog.String("error", r.Error.Error()),
		)
		if config.sink != nil {
			_ = config.sink.RecordError(ctx, &telemetry.ErrorData{
				Timestamp: time.Now(),
				Component: "correctness",
				Operation: r.Name,
				ErrorType: "property_failed",
				Message:   r.Error.Error(),
			})
		}
	}

	logger.Info("verification complete",
		slog.Bool("passed", report.Passed),
		slog.Int("properties", len(results)),
		slog.Int("failed", len(report.Failed())),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (v *Verifier) verifyProperty(ctx context.Context, prop Property, config *verifyConfig) PropertyResult {
	start := time.Now()
	result := PropertyResult{
		Name:        prop.Name,
		Description: prop.Description,
	}

	if prop.Check == nil {
		result.Error = fmt.Errorf("%w: %s", ErrNilCheck, prop.Name)
		result.Duration = time.Since(start)
		return result
	}

	if err := ctx.Err(); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	timeout := config.propertyTimeout
	if prop.Timeout > 0 {
		timeout = prop.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result.Error = prop.Check(ctx)
	result.Passed = result.Error == nil
	result.Duration = time.Since(start)
	return result
}

func filterByTags(properties []Property, tags []string) []Property {
	var filtered []Property
	for _, p := range properties {
		if hasAnyTag(p.Tags, tags) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
