// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package experiment validates, measures and aggregates dispatch
// configurations.
package experiment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

// ErrInvalidConfiguration is the same sentinel the workload builder uses, so
// callers can test for it regardless of which layer rejected the input.
var ErrInvalidConfiguration = workload.ErrInvalidConfiguration

// =============================================================================
// Shared Validator Instance
// =============================================================================

var configValidate *validator.Validate

var strategyNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("strategyname", validateStrategyName)
}

// validateStrategyName accepts lower-case names made of letters, digits and dashes.
func validateStrategyName(fl validator.FieldLevel) bool {
	return strategyNamePattern.MatchString(fl.Field().String())
}

// =============================================================================
// Configuration
// =============================================================================

// Configuration is one benchmark parameter point.
type Configuration struct {
	// Size is the number of slots in the workload.
	Size int `json:"size" yaml:"size" validate:"gte=0,lte=2147483647"`

	// NumWorkers is the number of distinct variants.
	NumWorkers int `json:"num_workers" yaml:"num_workers" validate:"min=1,max=10"`

	// Strategy names a registered dispatch strategy.
	Strategy string `json:"strategy" yaml:"strategy" validate:"required,strategyname"`
}

// String renders the configuration as "strategy/size=N/workers=M".
func (c Configuration) String() string {
	return fmt.Sprintf("%s/size=%d/workers=%d", c.Strategy, c.Size, c.NumWorkers)
}

// Validate checks the field ranges and that the strategy is registered.
//
// Inputs:
//   - reg: Registry to look the strategy up in. Nil skips the lookup.
//
// Outputs:
//   - error: Wraps ErrInvalidConfiguration, and strategy.ErrNotFound for
//     unknown strategies.
func (c Configuration) Validate(reg *strategy.Registry) error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, describeValidation(err))
	}
	if reg != nil {
		if _, ok := reg.Get(c.Strategy); !ok {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfiguration, strategy.ErrNotFound, c.Strategy)
		}
	}
	return nil
}

// describeValidation flattens validator errors into one line.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s=%v fails %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// =============================================================================
// Matrix
// =============================================================================

// Matrix is the cross product of sizes, worker counts and strategies.
type Matrix struct {
	Sizes      []int    `json:"sizes" yaml:"sizes"`
	Workers    []int    `json:"workers" yaml:"workers"`
	Strategies []string `json:"strategies" yaml:"strategies"`
}

// Expand lists every configuration, size-major, then worker count, then
// strategy in the order given.
func (m Matrix) Expand() []Configuration {
	out := make([]Configuration, 0, len(m.Sizes)*len(m.Workers)*len(m.Strategies))
	for _, size := range m.Sizes {
		for _, nw := range m.Workers {
			for _, name := range m.Strategies {
				out = append(out, Configuration{Size: size, NumWorkers: nw, Strategy: name})
			}
		}
	}
	return out
}

// Validate checks every expanded configuration and joins the failures.
// An empty matrix is invalid.
func (m Matrix) Validate(reg *strategy.Registry) error {
	configs := m.Expand()
	if len(configs) == 0 {
		return fmt.Errorf("%w: empty matrix", ErrInvalidConfiguration)
	}
	var errs []error
	seen := make(map[Configuration]struct{}, len(configs))
	for _, c := range configs {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if err := c.Validate(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
