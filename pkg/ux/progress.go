// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"sync"
)

// Progress prints one line per completed step on the printer's Err writer.
//
// It never animates: nothing runs in the background while a measurement is
// in flight, so lines are only written between configurations.
type Progress struct {
	printer *Printer
	label   string
	total   int

	mu      sync.Mutex
	current int
}

// NewProgress creates a progress reporter for total steps.
func NewProgress(p *Printer, label string, total int) *Progress {
	if p == nil {
		p = defaultPrinter
	}
	return &Progress{printer: p, label: label, total: total}
}

// Step records one finished step and prints it.
func (p *Progress) Step(name string) {
	p.mu.Lock()
	p.current++
	current := p.current
	p.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(p.printer.Err, "PROGRESS: %d/%d %s\n", current, p.total, name)
		return
	}
	if !ShouldShowProgress() {
		return
	}
	fmt.Fprintf(p.printer.Err, "%s %s %s %s\n",
		Styles.Subtitle.Render(p.label),
		ProgressBar(current, p.total, 20),
		Styles.Muted.Render(fmt.Sprintf("[%d/%d]", current, p.total)),
		name,
	)
}

// Current returns the number of finished steps.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
