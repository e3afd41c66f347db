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
	"os"
	"testing"
)

// childEnv makes the test binary behave as dispatchperf so forked runs can
// re-execute it.
const childEnv = "DISPATCHPERF_TEST_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(childEnv) == "1" {
		os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

// newTestCLI returns a cli whose forks re-execute the test binary.
func newTestCLI() (*cli, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.executable = func() (string, error) { return os.Args[0], nil }
	c.childEnv = []string{childEnv + "=1"}
	return c, &stdout, &stderr
}

// fastArgs keeps measurements to a single short iteration.
var fastArgs = []string{
	"--personality", "machine",
	"--warmup", "0",
	"--warmup-time", "0s",
	"--iterations", "2",
	"--iteration-time", "0s",
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	c, stdout, stderr := newTestCLI()
	code := c.execute(args)
	return code, stdout.String(), stderr.String()
}
