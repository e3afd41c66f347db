// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/dispatchperf/services/dispatch/sink"
	"github.com/AleutianAI/dispatchperf/services/dispatch/worker"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

func traverse(t testing.TB, s *Strategy, size, numWorkers int) *sink.Blackhole {
	t.Helper()
	wl, buckets, err := workload.Build(size, numWorkers)
	require.NoError(t, err)
	bh := sink.New()
	s.Run(wl, buckets, bh)
	return bh
}

// slotOrderDigest is the digest of calling slot i's variant with argument i.
func slotOrderDigest(size, numWorkers int) uint64 {
	values := make([]int32, size)
	for i := range values {
		values[i] = worker.Variants[i%numWorkers].Compute(int32(i))
	}
	return sink.DigestOf(values...)
}

// bucketOrderDigest is the digest of tag-ordered buckets with bucket-local arguments.
func bucketOrderDigest(size, numWorkers int) uint64 {
	var values []int32
	for tag := 0; tag < numWorkers; tag++ {
		local := 0
		for i := tag; i < size; i += numWorkers {
			values = append(values, worker.Variants[tag].Compute(int32(local)))
			local++
		}
	}
	return sink.DigestOf(values...)
}

func TestStrategies_CallCount(t *testing.T) {
	for _, s := range Builtins() {
		for _, size := range []int{0, 1, 10, 1000} {
			for _, n := range []int{1, 3, 5, 10} {
				t.Run(fmt.Sprintf("%s/size=%d/n=%d", s.Name, size, n), func(t *testing.T) {
					bh := traverse(t, s, size, n)
					assert.Equal(t, uint64(size), bh.Calls())
				})
			}
		}
	}
}

func TestStrategies_SlotOrderEquivalence(t *testing.T) {
	slotOrder := []string{Polymorphic, TaggedSwitch, TypeSwitch, FuncTable}
	reg := DefaultRegistry()

	for _, size := range []int{1, 10, 1000} {
		for n := 1; n <= worker.NumVariants; n++ {
			want := slotOrderDigest(size, n)
			for _, name := range slotOrder {
				bh := traverse(t, reg.MustGet(name), size, n)
				assert.Equal(t, want, bh.Digest(), "%s size=%d n=%d", name, size, n)
			}
		}
	}
}

func TestBucketed_TagOrderWithLocalIndex(t *testing.T) {
	reg := DefaultRegistry()
	for _, size := range []int{1, 10, 1000} {
		for n := 1; n <= worker.NumVariants; n++ {
			bh := traverse(t, reg.MustGet(Bucketed), size, n)
			assert.Equal(t, bucketOrderDigest(size, n), bh.Digest(), "size=%d n=%d", size, n)
		}
	}
}

func TestBucketed_SingleWorkerMatchesDirect(t *testing.T) {
	reg := DefaultRegistry()
	direct := traverse(t, reg.MustGet(Direct), 1000, 1)
	bucketed := traverse(t, reg.MustGet(Bucketed), 1000, 1)

	assert.Equal(t, direct.Digest(), bucketed.Digest())
	assert.Equal(t, direct.Calls(), bucketed.Calls())
}

func TestDirect_IgnoresWorkerCount(t *testing.T) {
	reg := DefaultRegistry()
	one := traverse(t, reg.MustGet(Direct), 100, 1)
	ten := traverse(t, reg.MustGet(Direct), 100, 10)
	assert.Equal(t, one.Digest(), ten.Digest())
	assert.Equal(t, slotOrderDigest(100, 1), one.Digest())
}

func TestScenario_TenSlotsThreeWorkers(t *testing.T) {
	reg := DefaultRegistry()

	want := sink.DigestOf(
		worker.Worker0{}.Compute(0), worker.Worker1{}.Compute(1), worker.Worker2{}.Compute(2),
		worker.Worker0{}.Compute(3), worker.Worker1{}.Compute(4), worker.Worker2{}.Compute(5),
		worker.Worker0{}.Compute(6), worker.Worker1{}.Compute(7), worker.Worker2{}.Compute(8),
		worker.Worker0{}.Compute(9),
	)
	assert.Equal(t, want, traverse(t, reg.MustGet(Polymorphic), 10, 3).Digest())

	wantBucketed := sink.DigestOf(
		worker.Worker0{}.Compute(0), worker.Worker0{}.Compute(1), worker.Worker0{}.Compute(2), worker.Worker0{}.Compute(3),
		worker.Worker1{}.Compute(0), worker.Worker1{}.Compute(1), worker.Worker1{}.Compute(2),
		worker.Worker2{}.Compute(0), worker.Worker2{}.Compute(1), worker.Worker2{}.Compute(2),
	)
	assert.Equal(t, wantBucketed, traverse(t, reg.MustGet(Bucketed), 10, 3).Digest())
}

type rogueWorker struct{}

func (rogueWorker) Compute(x int32) int32 { return x }
func (rogueWorker) Tag() worker.Tag       { return worker.Tag(42) }

func TestTaggedSwitch_UnknownTagPanics(t *testing.T) {
	tags := []worker.Tag{worker.Tag0, worker.Tag(42)}
	assert.PanicsWithError(t,
		"tagged-switch: unreachable dispatch: slot 1 holds unknown variant tag 42",
		func() { dispatchTags(tags, sink.New()) },
	)
}

func TestTypeSwitch_UnknownVariantPanics(t *testing.T) {
	workers := []worker.Worker{worker.Worker0{}, rogueWorker{}}
	assert.PanicsWithError(t,
		"type-switch: unreachable dispatch: slot 1 holds unknown variant strategy.rogueWorker",
		func() { dispatchTypes(workers, sink.New()) },
	)
}

func TestCoreNames(t *testing.T) {
	assert.Equal(t, []string{"direct", "polymorphic", "tagged-switch", "bucketed"}, CoreNames())

	var core []string
	for _, s := range Builtins() {
		if s.Core {
			core = append(core, s.Name)
		}
	}
	assert.Equal(t, CoreNames(), core)
}

func BenchmarkStrategies(b *testing.B) {
	reg := DefaultRegistry()
	for _, n := range []int{1, 5, 10} {
		wl, buckets, err := workload.Build(1000, n)
		require.NoError(b, err)
		for _, s := range reg.Ordered() {
			b.Run(fmt.Sprintf("%s/workers=%d", s.Name, n), func(b *testing.B) {
				bh := sink.New()
				for b.Loop() {
					s.Run(wl, buckets, bh)
				}
				bh.Publish()
			})
		}
	}
}
