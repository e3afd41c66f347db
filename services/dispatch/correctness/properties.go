// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package correctness

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/dispatchperf/services/dispatch/bench"
	"github.com/AleutianAI/dispatchperf/services/dispatch/experiment"
	"github.com/AleutianAI/dispatchperf/services/dispatch/sink"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/worker"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

// Property tags.
const (
	TagWorkload   = "workload"
	TagStrategy   = "strategy"
	TagBench      = "bench"
	TagValidation = "validation"
)

// Case is one (size, numWorkers) point checked by the properties.
type Case struct {
	Size       int
	NumWorkers int
}

func (c Case) String() string {
	return fmt.Sprintf("size=%d/workers=%d", c.Size, c.NumWorkers)
}

// DefaultCases covers empty, tiny, uneven and default-sized workloads for every
// worker count.
func DefaultCases() []Case {
	sizes := []int{0, 1, 2, 3, 9, 10, 11, 97, 1000}
	cases := make([]Case, 0, len(sizes)*worker.NumVariants)
	for _, size := range sizes {
		for nw := 1; nw <= worker.NumVariants; nw++ {
			cases = append(cases, Case{Size: size, NumWorkers: nw})
		}
	}
	return cases
}

// NewDefaultVerifier returns a verifier over DefaultProperties.
func NewDefaultVerifier(reg *strategy.Registry) *Verifier {
	return NewVerifier(DefaultProperties(reg, DefaultCases())...)
}

// DefaultProperties returns the built-in properties over cases.
//
// Description:
//
//	Workload properties check the builder. Strategy properties run one
//	traversal per case for every strategy in reg and compare call counts
//	and sink digests against references computed here. Bench and
//	validation properties cover the empty workload and rejected inputs.
func DefaultProperties(reg *strategy.Registry, cases []Case) []Property {
	if reg == nil {
		reg = strategy.DefaultRegistry()
	}
	return []Property{
		{
			Name:        "slot-tags",
			Description: "slot i holds the canonical variant with tag i mod numWorkers",
			Tags:        []string{TagWorkload},
			Check:       forEachCase(cases, checkSlotTags),
		},
		{
			Name:        "bucket-union",
			Description: "buckets hold exactly the workload's references, grouped by tag",
			Tags:        []string{TagWorkload},
			Check:       forEachCase(cases, checkBucketUnion),
		},
		{
			Name:        "bucket-lengths",
			Description: "bucket lengths sum to size and differ by at most one",
			Tags:        []string{TagWorkload},
			Check:       forEachCase(cases, checkBucketLengths),
		},
		{
			Name:        "single-bucket",
			Description: "numWorkers=1 puts every slot in bucket 0",
			Tags:        []string{TagWorkload},
			Check:       forEachCase(cases, checkSingleBucket),
		},
		{
			Name:        "idempotence",
			Description: "building twice yields identical workloads",
			Tags:        []string{TagWorkload},
			Check:       forEachCase(cases, checkIdempotence),
		},
		{
			Name:        "call-count",
			Description: "every strategy calls Compute exactly size times per traversal",
			Tags:        []string{TagStrategy},
			Check:       forEachCase(cases, func(c Case) error { return checkCallCount(reg, c) }),
		},
		{
			Name:        "sequence-equivalence",
			Description: "indirect strategies follow slot order; bucketed follows bucket order",
			Tags:        []string{TagStrategy},
			Check:       forEachCase(cases, func(c Case) error { return checkSequences(reg, c) }),
		},
		{
			Name:        "empty-workload",
			Description: "size 0 makes no calls and has an undefined average",
			Tags:        []string{TagStrategy, TagBench},
			Check:       func(ctx context.Context) error { return checkEmptyWorkload(ctx, reg) },
		},
		{
			Name:        "scenario-10-3",
			Description: "size 10 with 3 workers matches the worked example",
			Tags:        []string{TagWorkload, TagStrategy},
			Check:       func(context.Context) error { return checkScenario(reg) },
		},
		{
			Name:        "invalid-configuration",
			Description: "out-of-range sizes and worker counts are rejected",
			Tags:        []string{TagValidation},
			Check:       func(context.Context) error { return checkInvalidConfiguration(reg) },
		},
	}
}

// forEachCase runs check over cases, stopping at the first failure or when
// ctx is done.
func forEachCase(cases []Case, check func(Case) error) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, c := range cases {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := check(c); err != nil {
				return fmt.Errorf("%s: %w", c, err)
			}
		}
		return nil
	}
}

func build(c Case) (*workload.Workload, *workload.Buckets, error) {
	return workload.Build(c.Size, c.NumWorkers)
}

func checkSlotTags(c Case) error {
	wl, _, err := build(c)
	if err != nil {
		return err
	}
	if wl.Len() != c.Size {
		return fmt.Errorf("length %d, want %d", wl.Len(), c.Size)
	}
	for i := 0; i < wl.Len(); i++ {
		want := worker.Tag(i % c.NumWorkers)
		if wl.Tag(i) != want {
			return fmt.Errorf("slot %d tag %s, want %s", i, wl.Tag(i), want)
		}
		if wl.At(i) != worker.Of(want) {
			return fmt.Errorf("slot %d holds %T, want %s", i, wl.At(i), want)
		}
	}
	return nil
}

func checkBucketUnion(c Case) error {
	wl, b, err := build(c)
	if err != nil {
		return err
	}
	var counts [worker.NumVariants]int
	for i := 0; i < wl.Len(); i++ {
		counts[wl.Tag(i)]++
	}
	for tag := range worker.Tag(worker.NumVariants) {
		bucket := b.Bucket(tag)
		if len(bucket) != counts[tag] {
			return fmt.Errorf("bucket %s has %d entries, workload has %d", tag, len(bucket), counts[tag])
		}
		for j, w := range bucket {
			if w.Tag() != tag {
				return fmt.Errorf("bucket %s entry %d is %s", tag, j, w.Tag())
			}
			// The j-th entry of a bucket comes from slot tag + j*numWorkers.
			slot := wl.At(int(tag) + j*wl.NumWorkers())
			if got, want := w.Compute(int32(j)), slot.Compute(int32(j)); got != want {
				return fmt.Errorf("bucket %s entry %d computes %d, slot computes %d", tag, j, got, want)
			}
		}
	}
	return nil
}

func checkBucketLengths(c Case) error {
	_, b, err := build(c)
	if err != nil {
		return err
	}
	if b.Total() != c.Size {
		return fmt.Errorf("total %d, want %d", b.Total(), c.Size)
	}
	floor := c.Size / c.NumWorkers
	ceil := floor
	if c.Size%c.NumWorkers != 0 {
		ceil++
	}
	for tag := range worker.Tag(worker.NumVariants) {
		n := b.Len(tag)
		if int(tag) >= c.NumWorkers {
			if n != 0 {
				return fmt.Errorf("unused bucket %s has %d entries", tag, n)
			}
			continue
		}
		if n != floor && n != ceil {
			return fmt.Errorf("bucket %s has %d entries, want %d or %d", tag, n, floor, ceil)
		}
	}
	return nil
}

func checkSingleBucket(c Case) error {
	if c.NumWorkers != 1 {
		return nil
	}
	_, b, err := build(c)
	if err != nil {
		return err
	}
	if b.Len(worker.Tag0) != c.Size {
		return fmt.Errorf("bucket 0 has %d entries, want %d", b.Len(worker.Tag0), c.Size)
	}
	return nil
}

func checkIdempotence(c Case) error {
	wl1, b1, err := build(c)
	if err != nil {
		return err
	}
	wl2, b2, err := build(c)
	if err != nil {
		return err
	}
	if !slices.Equal(wl1.Tags(), wl2.Tags()) {
		return errors.New("slot tags differ between builds")
	}
	for tag := range worker.Tag(worker.NumVariants) {
		if b1.Len(tag) != b2.Len(tag) {
			return fmt.Errorf("bucket %s length differs between builds", tag)
		}
	}
	return nil
}

func checkCallCount(reg *strategy.Registry, c Case) error {
	wl, b, err := build(c)
	if err != nil {
		return err
	}
	for _, st := range reg.Ordered() {
		bh := sink.New()
		st.Run(wl, b, bh)
		if bh.Calls() != uint64(c.Size) {
			return fmt.Errorf("%s made %d calls, want %d", st.Name, bh.Calls(), c.Size)
		}
	}
	return nil
}

// slotOrderDigest is the digest of calling slot i's variant with argument i.
func slotOrderDigest(wl *workload.Workload) uint64 {
	bh := sink.New()
	for i := 0; i < wl.Len(); i++ {
		bh.Consume(wl.At(i).Compute(int32(i)))
	}
	return bh.Digest()
}

// bucketOrderDigest is the digest of visiting buckets 0..9 in order with the
// in-bucket index as argument.
func bucketOrderDigest(b *workload.Buckets) uint64 {
	bh := sink.New()
	for tag := range worker.Tag(worker.NumVariants) {
		for j, w := range b.Bucket(tag) {
			bh.Consume(w.Compute(int32(j)))
		}
	}
	return bh.Digest()
}

func digestOf(reg *strategy.Registry, name string, wl *workload.Workload, b *workload.Buckets) (uint64, bool) {
	st, ok := reg.Get(name)
	if !ok {
		return 0, false
	}
	bh := sink.New()
	st.Run(wl, b, bh)
	return bh.Digest(), true
}

func checkSequences(reg *strategy.Registry, c Case) error {
	wl, b, err := build(c)
	if err != nil {
		return err
	}

	slot := slotOrderDigest(wl)
	for _, name := range []string{strategy.Polymorphic, strategy.TaggedSwitch, strategy.TypeSwitch, strategy.FuncTable} {
		if d, ok := digestOf(reg, name, wl, b); ok && d != slot {
			return fmt.Errorf("%s digest %x, slot order %x", name, d, slot)
		}
	}

	bucketed, ok := digestOf(reg, strategy.Bucketed, wl, b)
	if ok && bucketed != bucketOrderDigest(b) {
		return fmt.Errorf("bucketed digest %x, bucket order %x", bucketed, bucketOrderDigest(b))
	}

	if c.NumWorkers == 1 {
		direct, okDirect := digestOf(reg, strategy.Direct, wl, b)
		if ok && okDirect && direct != bucketed {
			return fmt.Errorf("bucketed digest %x differs from direct %x with one worker", bucketed, direct)
		}
	}
	return nil
}

func checkEmptyWorkload(ctx context.Context, reg *strategy.Registry) error {
	executor := experiment.NewExecutor(experiment.WithRegistry(reg))
	for _, st := range reg.Ordered() {
		result, err := executor.Execute(ctx,
			experiment.Configuration{Size: 0, NumWorkers: 1, Strategy: st.Name},
			bench.WithWarmup(0),
			bench.WithIterations(1),
			bench.WithThreadLock(false),
		)
		if err != nil {
			return fmt.Errorf("%s: %w", st.Name, err)
		}
		if result.Calls != 0 {
			return fmt.Errorf("%s made %d calls on an empty workload", st.Name, result.Calls)
		}
		if result.Defined() {
			return fmt.Errorf("%s reported %.3f ns/call for an empty workload", st.Name, result.NanosPerCall)
		}
	}
	return nil
}

func checkScenario(reg *strategy.Registry) error {
	wl, b, err := workload.Build(10, 3)
	if err != nil {
		return err
	}

	wantTags := []worker.Tag{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}
	if !slices.Equal(wl.Tags(), wantTags) {
		return fmt.Errorf("tags %v, want %v", wl.Tags(), wantTags)
	}
	if b.Len(0) != 4 || b.Len(1) != 3 || b.Len(2) != 3 {
		return fmt.Errorf("bucket lengths %d/%d/%d, want 4/3/3", b.Len(0), b.Len(1), b.Len(2))
	}

	w0, w1, w2 := worker.Worker0{}, worker.Worker1{}, worker.Worker2{}
	polymorphic := sink.DigestOf(
		w0.Compute(0), w1.Compute(1), w2.Compute(2),
		w0.Compute(3), w1.Compute(4), w2.Compute(5),
		w0.Compute(6), w1.Compute(7), w2.Compute(8),
		w0.Compute(9),
	)
	bucketed := sink.DigestOf(
		w0.Compute(0), w0.Compute(1), w0.Compute(2), w0.Compute(3),
		w1.Compute(0), w1.Compute(1), w1.Compute(2),
		w2.Compute(0), w2.Compute(1), w2.Compute(2),
	)

	if d, ok := digestOf(reg, strategy.Polymorphic, wl, b); ok && d != polymorphic {
		return fmt.Errorf("polymorphic digest %x, want %x", d, polymorphic)
	}
	if d, ok := digestOf(reg, strategy.TaggedSwitch, wl, b); ok && d != polymorphic {
		return fmt.Errorf("tagged-switch digest %x, want %x", d, polymorphic)
	}
	if d, ok := digestOf(reg, strategy.Bucketed, wl, b); ok && d != bucketed {
		return fmt.Errorf("bucketed digest %x, want %x", d, bucketed)
	}
	return nil
}

func checkInvalidConfiguration(reg *strategy.Registry) error {
	invalid := []experiment.Configuration{
		{Size: 10, NumWorkers: 0, Strategy: strategy.Direct},
		{Size: 10, NumWorkers: worker.NumVariants + 1, Strategy: strategy.Direct},
		{Size: -1, NumWorkers: 3, Strategy: strategy.Direct},
	}
	for _, cfg := range invalid {
		if err := cfg.Validate(reg); !errors.Is(err, experiment.ErrInvalidConfiguration) {
			return fmt.Errorf("%s accepted: %v", cfg, err)
		}
		if _, _, err := workload.Build(cfg.Size, cfg.NumWorkers); !errors.Is(err, workload.ErrInvalidConfiguration) {
			return fmt.Errorf("workload.Build(%d, %d) accepted: %v", cfg.Size, cfg.NumWorkers, err)
		}
	}
	return nil
}
