// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func sampleReport() Report {
	return Report{
		Title:    "Dispatch overhead",
		RunID:    "run-1",
		Baseline: "direct",
		Rows: []ReportRow{
			{Strategy: "direct", NumWorkers: 5, Size: 1000, NanosPerCall: 2.0, StdDev: 0.1, Iterations: 5, Calls: 5000, Forks: 1},
			{Strategy: "polymorphic", NumWorkers: 5, Size: 1000, NanosPerCall: 5.0, StdDev: 0.25, Iterations: 5, Calls: 5000, Forks: 1},
			{Strategy: "polymorphic", NumWorkers: 5, Size: 0, NanosPerCall: math.NaN(), Forks: 1},
		},
	}
}

func TestFormatNanos(t *testing.T) {
	if got := FormatNanos(math.NaN()); got != Undefined {
		t.Errorf("FormatNanos(NaN) = %q, want %q", got, Undefined)
	}
	if got := FormatNanos(1.23456); got != "1.235" {
		t.Errorf("FormatNanos(1.23456) = %q, want 1.235", got)
	}
}

func TestReport_Relative(t *testing.T) {
	r := sampleReport()

	if got := r.relative(r.Rows[1]); got != "2.50x" {
		t.Errorf("relative(polymorphic) = %q, want 2.50x", got)
	}
	if got := r.relative(r.Rows[0]); got != "1.00x" {
		t.Errorf("relative(direct) = %q, want 1.00x", got)
	}
	if got := r.relative(r.Rows[2]); got != "-" {
		t.Errorf("relative(undefined) = %q, want -", got)
	}

	noBase := ReportRow{Strategy: "bucketed", NumWorkers: 10, Size: 1000, NanosPerCall: 1}
	if got := r.relative(noBase); got != "-" {
		t.Errorf("relative without baseline row = %q, want -", got)
	}
}

func TestRenderReport_Machine(t *testing.T) {
	withLevel(t, PersonalityMachine)

	var buf bytes.Buffer
	if err := RenderReport(&buf, sampleReport()); err != nil {
		t.Fatalf("RenderReport() error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), buf.String())
	}
	if lines[0] != "strategy\tworkers\tsize\tns/call\t± stddev\titerations\tcalls\tforks\tvs direct" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "polymorphic\t5\t1000\t5.000\t0.250\t5\t5000\t1\t2.50x" {
		t.Errorf("row = %q", lines[2])
	}
	if lines[3] != "polymorphic\t5\t0\tundefined\t-\t0\t0\t1\t-" {
		t.Errorf("undefined row = %q", lines[3])
	}
}

func TestRenderReport_Table(t *testing.T) {
	for _, level := range []PersonalityLevel{PersonalityFull, PersonalityStandard, PersonalityMinimal} {
		t.Run(string(level), func(t *testing.T) {
			withLevel(t, level)

			var buf bytes.Buffer
			if err := RenderReport(&buf, sampleReport()); err != nil {
				t.Fatalf("RenderReport() error = %v", err)
			}

			out := buf.String()
			for _, want := range []string{"strategy", "polymorphic", "5.000", Undefined, "2.50x"} {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if level == PersonalityFull && !strings.Contains(out, "run-1") {
				t.Errorf("full output missing run id:\n%s", out)
			}
			if level == PersonalityMinimal && strings.Contains(out, "Dispatch overhead") {
				t.Errorf("minimal output should skip the title:\n%s", out)
			}
		})
	}
}

func TestRenderReport_NoBaseline(t *testing.T) {
	withLevel(t, PersonalityMachine)

	r := sampleReport()
	r.Baseline = ""

	var buf bytes.Buffer
	if err := RenderReport(&buf, r); err != nil {
		t.Fatalf("RenderReport() error = %v", err)
	}
	if strings.Contains(buf.String(), "vs ") {
		t.Errorf("unexpected relative column: %q", buf.String())
	}
}

func TestRenderTable(t *testing.T) {
	headers := []string{"name", "mechanism"}
	rows := [][]string{{"direct", "static call"}, {"polymorphic", "interface method"}}

	t.Run("machine", func(t *testing.T) {
		withLevel(t, PersonalityMachine)
		var buf bytes.Buffer
		if err := RenderTable(&buf, "Strategies", headers, rows); err != nil {
			t.Fatal(err)
		}
		want := "name\tmechanism\ndirect\tstatic call\npolymorphic\tinterface method\n"
		if buf.String() != want {
			t.Errorf("RenderTable = %q, want %q", buf.String(), want)
		}
	})

	t.Run("standard", func(t *testing.T) {
		withLevel(t, PersonalityStandard)
		var buf bytes.Buffer
		if err := RenderTable(&buf, "Strategies", headers, rows); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"Strategies", "interface method", "╭"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("output missing %q:\n%s", want, buf.String())
			}
		}
	})
}
