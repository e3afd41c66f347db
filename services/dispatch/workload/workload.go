// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workload builds the call-site populations traversed by the
// dispatch strategies.
//
// A Workload is an ordered sequence of variant references where slot i holds
// the variant tagged i mod numWorkers. Buckets regroups the same references
// by tag so that each group is homogeneous.
package workload

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/dispatchperf/services/dispatch/worker"
)

// MaxSize is the largest workload size. Slot indexes are passed to Compute
// as int32 arguments.
const MaxSize = math.MaxInt32

var (
	// ErrInvalidConfiguration indicates a size or worker count outside the
	// supported range.
	ErrInvalidConfiguration = errors.New("invalid workload configuration")
)

// Workload is an ordered, read-only sequence of variant references.
//
// Thread Safety: Immutable after Build; safe for concurrent read access.
type Workload struct {
	workers    []worker.Worker
	tags       []worker.Tag
	numWorkers int
}

// Len returns the number of slots.
func (w *Workload) Len() int { return len(w.workers) }

// NumWorkers returns the number of distinct variants the workload cycles through.
func (w *Workload) NumWorkers() int { return w.numWorkers }

// At returns the variant in slot i.
func (w *Workload) At(i int) worker.Worker { return w.workers[i] }

// Tag returns the tag of slot i.
func (w *Workload) Tag(i int) worker.Tag { return w.tags[i] }

// Workers exposes the slot sequence for traversal. Callers must not modify it.
func (w *Workload) Workers() []worker.Worker { return w.workers }

// TagSlice exposes the tag sequence for traversal. Callers must not modify it.
func (w *Workload) TagSlice() []worker.Tag { return w.tags }

// Tags returns a copy of the tag sequence.
func (w *Workload) Tags() []worker.Tag {
	out := make([]worker.Tag, len(w.tags))
	copy(out, w.tags)
	return out
}

// Buckets is a Workload regrouped by tag. Each bucket is stored with its
// concrete variant type so traversal can call it without indirection.
//
// Thread Safety: Immutable after Build; safe for concurrent read access.
type Buckets struct {
	B0 []worker.Worker0
	B1 []worker.Worker1
	B2 []worker.Worker2
	B3 []worker.Worker3
	B4 []worker.Worker4
	B5 []worker.Worker5
	B6 []worker.Worker6
	B7 []worker.Worker7
	B8 []worker.Worker8
	B9 []worker.Worker9
}

// Len returns the number of references in the bucket for tag.
func (b *Buckets) Len(tag worker.Tag) int {
	switch tag {
	case worker.Tag0:
		return len(b.B0)
	case worker.Tag1:
		return len(b.B1)
	case worker.Tag2:
		return len(b.B2)
	case worker.Tag3:
		return len(b.B3)
	case worker.Tag4:
		return len(b.B4)
	case worker.Tag5:
		return len(b.B5)
	case worker.Tag6:
		return len(b.B6)
	case worker.Tag7:
		return len(b.B7)
	case worker.Tag8:
		return len(b.B8)
	case worker.Tag9:
		return len(b.B9)
	}
	return 0
}

// Bucket returns a copy of the bucket for tag as interface values, read
// from the typed slice that traversal uses.
func (b *Buckets) Bucket(tag worker.Tag) []worker.Worker {
	switch tag {
	case worker.Tag0:
		return boxed(b.B0)
	case worker.Tag1:
		return boxed(b.B1)
	case worker.Tag2:
		return boxed(b.B2)
	case worker.Tag3:
		return boxed(b.B3)
	case worker.Tag4:
		return boxed(b.B4)
	case worker.Tag5:
		return boxed(b.B5)
	case worker.Tag6:
		return boxed(b.B6)
	case worker.Tag7:
		return boxed(b.B7)
	case worker.Tag8:
		return boxed(b.B8)
	case worker.Tag9:
		return boxed(b.B9)
	}
	return nil
}

func boxed[T worker.Worker](s []T) []worker.Worker {
	if len(s) == 0 {
		return nil
	}
	out := make([]worker.Worker, len(s))
	for i, w := range s {
		out[i] = w
	}
	return out
}

// Total returns the sum of all bucket lengths.
func (b *Buckets) Total() int {
	total := 0
	for tag := range worker.Tag(worker.NumVariants) {
		total += b.Len(tag)
	}
	return total
}

// Validate checks size and numWorkers against the supported range.
//
// Outputs:
//   - error: Wraps ErrInvalidConfiguration when either value is out of range.
func Validate(size, numWorkers int) error {
	if numWorkers < 1 || numWorkers > worker.NumVariants {
		return fmt.Errorf("%w: numWorkers %d outside [1, %d]", ErrInvalidConfiguration, numWorkers, worker.NumVariants)
	}
	if size < 0 {
		return fmt.Errorf("%w: size %d is negative", ErrInvalidConfiguration, size)
	}
	if size > MaxSize {
		return fmt.Errorf("%w: size %d exceeds %d", ErrInvalidConfiguration, size, MaxSize)
	}
	return nil
}

// Build constructs the round-robin Workload and its bucketed form.
//
// Description:
//
//	Slot i receives the canonical variant with tag i mod numWorkers. The
//	bucketed form is derived from the Workload in a single in-order pass,
//	so each bucket preserves the relative slot order. Building is
//	deterministic: equal inputs produce equal outputs.
//
// Inputs:
//   - size: Number of slots. Must be in [0, MaxSize].
//   - numWorkers: Number of distinct variants. Must be in [1, 10].
//
// Outputs:
//   - *Workload: The slot sequence. Nil on error.
//   - *Buckets: The same references grouped by tag. Nil on error.
//   - error: Wraps ErrInvalidConfiguration for out-of-range inputs.
//
// Example:
//
//	wl, buckets, err := workload.Build(1000, 5)
//	if err != nil {
//	    return fmt.Errorf("building workload: %w", err)
//	}
func Build(size, numWorkers int) (*Workload, *Buckets, error) {
	if err := Validate(size, numWorkers); err != nil {
		return nil, nil, err
	}

	wl := &Workload{
		workers:    make([]worker.Worker, size),
		tags:       make([]worker.Tag, size),
		numWorkers: numWorkers,
	}
	for i := 0; i < size; i++ {
		tag := worker.Tag(i % numWorkers)
		wl.tags[i] = tag
		wl.workers[i] = worker.Variants[tag]
	}

	return wl, bucketize(wl), nil
}

// bucketize groups the workload's slots by tag in slot order.
func bucketize(wl *Workload) *Buckets {
	// Round-robin assignment gives every used tag ceil(size/numWorkers) slots at most.
	capacity := 0
	if wl.numWorkers > 0 {
		capacity = (wl.Len() + wl.numWorkers - 1) / wl.numWorkers
	}

	b := &Buckets{}
	for i, w := range wl.workers {
		switch v := w.(type) {
		case worker.Worker0:
			b.B0 = appendCap(b.B0, v, capacity)
		case worker.Worker1:
			b.B1 = appendCap(b.B1, v, capacity)
		case worker.Worker2:
			b.B2 = appendCap(b.B2, v, capacity)
		case worker.Worker3:
			b.B3 = appendCap(b.B3, v, capacity)
		case worker.Worker4:
			b.B4 = appendCap(b.B4, v, capacity)
		case worker.Worker5:
			b.B5 = appendCap(b.B5, v, capacity)
		case worker.Worker6:
			b.B6 = appendCap(b.B6, v, capacity)
		case worker.Worker7:
			b.B7 = appendCap(b.B7, v, capacity)
		case worker.Worker8:
			b.B8 = appendCap(b.B8, v, capacity)
		case worker.Worker9:
			b.B9 = appendCap(b.B9, v, capacity)
		default:
			panic(fmt.Sprintf("workload: slot %d holds unknown variant %T", i, w))
		}
	}
	return b
}

func appendCap[T any](s []T, v T, capacity int) []T {
	if s == nil {
		s = make([]T, 0, capacity)
	}
	return append(s, v)
}
