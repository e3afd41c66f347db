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
	"strings"
)

// CommandError wraps a failed child measurement with its stderr.
//
// # Description
//
// A forked child that panics (for example on an unreachable dispatch) or
// exits non-zero is fatal for the whole run. The error keeps the exit code
// and the tail of the child's stderr so the cause survives into the
// parent's report.
//
// # Example
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.Stderr)
//	}
type CommandError struct {
	// Command describes what the child was asked to do.
	Command string

	// ExitCode is the child exit code, 0 if it exited cleanly with bad
	// output, or -1 if it never ran to completion.
	ExitCode int

	// Stderr is the trimmed tail of the child's standard error.
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output is available.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

// NewCommandError creates a CommandError. Stderr is trimmed.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the stderr of the first CommandError in the chain
// that has one.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	for errors.As(err, &cmdErr) {
		if cmdErr.HasStderr() {
			return cmdErr.Stderr
		}
		err = cmdErr.Wrapped
	}
	return ""
}

// lastLine returns the first line of a panic report if present, otherwise
// the last non-empty line.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for _, l := range lines {
		if strings.HasPrefix(l, "panic: ") {
			return strings.TrimSpace(l)
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
