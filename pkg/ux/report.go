// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Undefined is printed in place of an average that does not exist.
const Undefined = "undefined"

// ReportRow is one measured configuration.
type ReportRow struct {
	Strategy     string
	NumWorkers   int
	Size         int
	NanosPerCall float64
	StdDev       float64
	Iterations   int
	Calls        int64
	Forks        int
}

// Defined reports whether the row carries an average.
func (r ReportRow) Defined() bool {
	return !math.IsNaN(r.NanosPerCall)
}

// Report is a rendered set of measurements.
type Report struct {
	Title string
	RunID string

	// Baseline names the strategy the relative column compares against.
	// Empty disables the column.
	Baseline string

	Rows []ReportRow
}

var reportHeaders = []string{"strategy", "workers", "size", "ns/call", "± stddev", "iterations", "calls", "forks"}

// RenderReport writes r to w according to the current personality.
//
// Machine personality writes a tab-separated header and one line per row.
// Other personalities draw a lipgloss table; minimal drops colors and uses
// an ASCII border.
func RenderReport(w io.Writer, r Report) error {
	headers := append([]string(nil), reportHeaders...)
	if r.Baseline != "" {
		headers = append(headers, "vs "+r.Baseline)
	}

	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, r.cells(row))
	}

	var subtitle string
	if r.RunID != "" {
		subtitle = "run " + r.RunID
	}
	return renderTable(w, r.Title, subtitle, headers, rows, func(row, col int) lipgloss.Style {
		switch {
		case col == 0:
			return Styles.TableCell
		case col == 3 && rows[row][3] == Undefined:
			return Styles.TableNumber.Foreground(ColorWarning)
		default:
			return Styles.TableNumber
		}
	})
}

// RenderTable writes a titled table of plain text cells to w.
func RenderTable(w io.Writer, title string, headers []string, rows [][]string) error {
	return renderTable(w, title, "", headers, rows, func(int, int) lipgloss.Style {
		return Styles.TableCell
	})
}

// renderTable draws rows with cellStyle for data cells. The subtitle is
// only shown at the full personality.
func renderTable(w io.Writer, title, subtitle string, headers []string, rows [][]string, cellStyle func(row, col int) lipgloss.Style) error {
	level := GetPersonality().Level
	if level == PersonalityMachine {
		if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
			return err
		}
		for _, cells := range rows {
			if _, err := fmt.Fprintln(w, strings.Join(cells, "\t")); err != nil {
				return err
			}
		}
		return nil
	}

	t := table.New().Headers(headers...).Rows(rows...)
	if level == PersonalityMinimal {
		t = t.Border(lipgloss.ASCIIBorder()).StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	} else {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(Styles.TableBorder).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.TableHeader
				}
				return cellStyle(row, col)
			})
	}

	var b strings.Builder
	if title != "" && level != PersonalityMinimal {
		b.WriteString(Styles.Title.Render(title))
		b.WriteString("\n")
	}
	if subtitle != "" && level == PersonalityFull {
		b.WriteString(Styles.Muted.Render(subtitle))
		b.WriteString("\n")
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// cells formats one row.
func (r Report) cells(row ReportRow) []string {
	cells := []string{
		row.Strategy,
		strconv.Itoa(row.NumWorkers),
		strconv.Itoa(row.Size),
		FormatNanos(row.NanosPerCall),
		"-",
		strconv.Itoa(row.Iterations),
		strconv.FormatInt(row.Calls, 10),
		strconv.Itoa(row.Forks),
	}
	if row.Defined() {
		cells[4] = strconv.FormatFloat(row.StdDev, 'f', 3, 64)
	}
	if r.Baseline != "" {
		cells = append(cells, r.relative(row))
	}
	return cells
}

// relative returns row's average as a multiple of the baseline strategy's
// average for the same size and worker count.
func (r Report) relative(row ReportRow) string {
	if !row.Defined() {
		return "-"
	}
	for _, base := range r.Rows {
		if base.Strategy != r.Baseline || base.Size != row.Size || base.NumWorkers != row.NumWorkers {
			continue
		}
		if !base.Defined() || base.NanosPerCall == 0 {
			return "-"
		}
		return strconv.FormatFloat(row.NanosPerCall/base.NanosPerCall, 'f', 2, 64) + "x"
	}
	return "-"
}

// FormatNanos formats an average, printing Undefined for NaN.
func FormatNanos(ns float64) string {
	if math.IsNaN(ns) {
		return Undefined
	}
	return strconv.FormatFloat(ns, 'f', 3, 64)
}
