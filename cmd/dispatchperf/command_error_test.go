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
	"testing"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "exit only",
			err:  NewCommandError("measure direct", 1, "", nil),
			want: "measure direct (exit 1)",
		},
		{
			name: "wrapped",
			err:  NewCommandError("measure direct", 1, "", errors.New("exit status 1")),
			want: "measure direct (exit 1): exit status 1",
		},
		{
			name: "last stderr line",
			err:  NewCommandError("measure direct", 1, "  first\nsecond\n\n", nil),
			want: "measure direct (exit 1): second",
		},
		{
			name: "panic line wins",
			err: NewCommandError("measure tagged-switch", 2,
				"panic: unreachable dispatch\n\ngoroutine 1 [running]:\nmain.main()", errors.New("exit status 2")),
			want: "measure tagged-switch (exit 2): exit status 2: panic: unreachable dispatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	base := errors.New("exit status 2")
	err := fmt.Errorf("run: %w", NewCommandError("measure", 2, "boom", base))

	if !errors.Is(err, base) {
		t.Error("errors.Is should reach the wrapped error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatal("errors.As should find the CommandError")
	}
	if cmdErr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", cmdErr.ExitCode)
	}
}

func TestExtractStderr(t *testing.T) {
	if got := ExtractStderr(nil); got != "" {
		t.Errorf("ExtractStderr(nil) = %q", got)
	}
	if got := ExtractStderr(errors.New("plain")); got != "" {
		t.Errorf("ExtractStderr(plain) = %q", got)
	}

	inner := NewCommandError("inner", 1, " details \n", nil)
	outer := NewCommandError("outer", 1, "", inner)
	if got := ExtractStderr(fmt.Errorf("wrap: %w", outer)); got != "details" {
		t.Errorf("ExtractStderr() = %q, want details", got)
	}
}
