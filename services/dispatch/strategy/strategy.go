// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy implements the traversals whose per-call cost the harness
// compares.
//
// Every strategy calls Compute exactly once per workload slot and hands every
// result to the sink. Strategies differ only in how each call reaches its
// target:
//
//	direct         one fixed variant, statically bound
//	polymorphic    interface method call on each slot
//	tagged-switch  switch on the slot tag, then a static call
//	bucketed       homogeneous per-tag loops, static calls
//	type-switch    Go type switch on the interface's dynamic type
//	func-table     indirect call through a per-tag function table
//
// The first four are the core comparison. The last two are additional
// indirect-call mechanisms available to the runner.
package strategy

import (
	"fmt"

	"github.com/AleutianAI/dispatchperf/services/dispatch/sink"
	"github.com/AleutianAI/dispatchperf/services/dispatch/worker"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

// Strategy names.
const (
	Direct       = "direct"
	Polymorphic  = "polymorphic"
	TaggedSwitch = "tagged-switch"
	Bucketed     = "bucketed"
	TypeSwitch   = "type-switch"
	FuncTable    = "func-table"
)

// Func performs one traversal. It must call Compute once per workload slot
// and pass every result to s.
type Func func(wl *workload.Workload, b *workload.Buckets, s *sink.Blackhole)

// Strategy describes one dispatch mechanism.
type Strategy struct {
	// Name is the registry key.
	Name string

	// Mechanism names how each call is resolved.
	Mechanism string

	// Description is a one-line summary for listings.
	Description string

	// Core marks the four strategies of the base comparison.
	Core bool

	// Run performs one traversal.
	Run Func
}

// UnreachableDispatchError reports a slot whose variant matched none of the
// known variants. Traversals panic with it; it is never recovered.
type UnreachableDispatchError struct {
	Strategy string
	Slot     int
	Variant  string
}

func (e *UnreachableDispatchError) Error() string {
	return fmt.Sprintf("%s: unreachable dispatch: slot %d holds unknown variant %s", e.Strategy, e.Slot, e.Variant)
}

// CoreNames returns the four core strategy names in reporting order.
func CoreNames() []string {
	return []string{Direct, Polymorphic, TaggedSwitch, Bucketed}
}

// Builtins returns fresh descriptors for every built-in strategy, core first.
func Builtins() []*Strategy {
	return []*Strategy{
		{
			Name:        Direct,
			Mechanism:   "static",
			Description: "every call targets worker0 through a statically bound call",
			Core:        true,
			Run:         runDirect,
		},
		{
			Name:        Polymorphic,
			Mechanism:   "interface",
			Description: "each slot is invoked through the Worker interface",
			Core:        true,
			Run:         runPolymorphic,
		},
		{
			Name:        TaggedSwitch,
			Mechanism:   "switch",
			Description: "exhaustive switch on the slot tag, then a static call",
			Core:        true,
			Run:         runTaggedSwitch,
		},
		{
			Name:        Bucketed,
			Mechanism:   "bucketed",
			Description: "per-tag homogeneous loops in tag order, static calls",
			Core:        true,
			Run:         runBucketed,
		},
		{
			Name:        TypeSwitch,
			Mechanism:   "type-switch",
			Description: "type switch on the interface's dynamic type",
			Run:         runTypeSwitch,
		},
		{
			Name:        FuncTable,
			Mechanism:   "func-table",
			Description: "indirect call through a function table indexed by tag",
			Run:         runFuncTable,
		},
	}
}

func runDirect(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
	var w worker.Worker0
	n := wl.Len()
	for i := 0; i < n; i++ {
		s.Consume(w.Compute(int32(i)))
	}
}

func runPolymorphic(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
	for i, w := range wl.Workers() {
		s.Consume(w.Compute(int32(i)))
	}
}

func runTaggedSwitch(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
	dispatchTags(wl.TagSlice(), s)
}

// dispatchTags is the tagged-switch traversal over a raw tag sequence.
func dispatchTags(tags []worker.Tag, s *sink.Blackhole) {
	for i, tag := range tags {
		x := int32(i)
		switch tag {
		case worker.Tag0:
			s.Consume(worker.Worker0{}.Compute(x))
		case worker.Tag1:
			s.Consume(worker.Worker1{}.Compute(x))
		case worker.Tag2:
			s.Consume(worker.Worker2{}.Compute(x))
		case worker.Tag3:
			s.Consume(worker.Worker3{}.Compute(x))
		case worker.Tag4:
			s.Consume(worker.Worker4{}.Compute(x))
		case worker.Tag5:
			s.Consume(worker.Worker5{}.Compute(x))
		case worker.Tag6:
			s.Consume(worker.Worker6{}.Compute(x))
		case worker.Tag7:
			s.Consume(worker.Worker7{}.Compute(x))
		case worker.Tag8:
			s.Consume(worker.Worker8{}.Compute(x))
		case worker.Tag9:
			s.Consume(worker.Worker9{}.Compute(x))
		default:
			panic(&UnreachableDispatchError{Strategy: TaggedSwitch, Slot: i, Variant: fmt.Sprintf("tag %d", uint8(tag))})
		}
	}
}

func runBucketed(_ *workload.Workload, b *workload.Buckets, s *sink.Blackhole) {
	for i, w := range b.B0 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B1 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B2 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B3 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B4 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B5 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B6 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B7 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B8 {
		s.Consume(w.Compute(int32(i)))
	}
	for i, w := range b.B9 {
		s.Consume(w.Compute(int32(i)))
	}
}

func runTypeSwitch(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
	dispatchTypes(wl.Workers(), s)
}

// dispatchTypes is the type-switch traversal over a raw slot sequence.
func dispatchTypes(workers []worker.Worker, s *sink.Blackhole) {
	for i, w := range workers {
		x := int32(i)
		switch v := w.(type) {
		case worker.Worker0:
			s.Consume(v.Compute(x))
		case worker.Worker1:
			s.Consume(v.Compute(x))
		case worker.Worker2:
			s.Consume(v.Compute(x))
		case worker.Worker3:
			s.Consume(v.Compute(x))
		case worker.Worker4:
			s.Consume(v.Compute(x))
		case worker.Worker5:
			s.Consume(v.Compute(x))
		case worker.Worker6:
			s.Consume(v.Compute(x))
		case worker.Worker7:
			s.Consume(v.Compute(x))
		case worker.Worker8:
			s.Consume(v.Compute(x))
		case worker.Worker9:
			s.Consume(v.Compute(x))
		default:
			panic(&UnreachableDispatchError{Strategy: TypeSwitch, Slot: i, Variant: fmt.Sprintf("%T", w)})
		}
	}
}

func runFuncTable(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
	table := &worker.ComputeFuncs
	for i, tag := range wl.TagSlice() {
		s.Consume(table[tag](int32(i)))
	}
}
