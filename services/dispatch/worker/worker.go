// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker defines the ten interchangeable compute variants that the
// dispatch harness invokes.
//
// Every variant maps a 32-bit signed integer to a 32-bit signed integer with
// two's-complement wraparound. Bodies are pure: no state, no allocation, no
// I/O. The variants differ in arithmetic shape so that the branch predictor
// and the inliner see ten genuinely distinct call targets.
package worker

import (
	"fmt"
	"math/bits"
)

// NumVariants is the size of the closed variant set.
const NumVariants = 10

// Tag identifies a variant. Valid tags are 0 through NumVariants-1.
type Tag uint8

const (
	Tag0 Tag = iota
	Tag1
	Tag2
	Tag3
	Tag4
	Tag5
	Tag6
	Tag7
	Tag8
	Tag9
)

// Valid reports whether t names one of the ten variants.
func (t Tag) Valid() bool {
	return t < NumVariants
}

// String renders the tag as "worker<N>".
func (t Tag) String() string {
	return fmt.Sprintf("worker%d", uint8(t))
}

// Worker is one compute variant.
//
// Description:
//
//	Compute is the operation whose call overhead the harness measures.
//	Tag identifies the concrete variant without a type assertion.
//
// Thread Safety: Implementations are stateless and safe for concurrent use.
type Worker interface {
	Compute(x int32) int32
	Tag() Tag
}

// Worker0 sums five products of shifted copies of x.
type Worker0 struct{}

func (Worker0) Compute(x int32) int32 {
	var sum int32
	for i := int32(0); i < 5; i++ {
		sum += (x + i) * (x - i + 2)
	}
	return sum
}

func (Worker0) Tag() Tag { return Tag0 }

// Worker1 folds five scaled terms together with xor.
type Worker1 struct{}

func (Worker1) Compute(x int32) int32 {
	prod := int32(1)
	for i := int32(1); i <= 5; i++ {
		prod ^= (x + i) * 31
	}
	return prod
}

func (Worker1) Tag() Tag { return Tag1 }

// Worker2 rotates x left by its own low three bits.
type Worker2 struct{}

func (Worker2) Compute(x int32) int32 {
	return int32(bits.RotateLeft32(uint32(x), int(x&7))) + 0xABCD
}

func (Worker2) Tag() Tag { return Tag2 }

// Worker3 runs four steps of an x-seeded Fibonacci recurrence.
type Worker3 struct{}

func (Worker3) Compute(x int32) int32 {
	a, b := int32(1), int32(1)
	for i := 0; i < 4; i++ {
		a, b = b, a+b+x
	}
	return b
}

func (Worker3) Tag() Tag { return Tag3 }

// Worker4 is a multiply-xor hash.
type Worker4 struct{}

func (Worker4) Compute(x int32) int32 {
	const mask = 0x55AA55AA
	return (x * 12345) ^ mask
}

func (Worker4) Tag() Tag { return Tag4 }

// Worker5 is the product (x+1)(x+2)(x+3).
type Worker5 struct{}

func (Worker5) Compute(x int32) int32 {
	return (x + 1) * (x + 2) * (x + 3)
}

func (Worker5) Tag() Tag { return Tag5 }

// Worker6 sums five left shifts of x.
type Worker6 struct{}

func (Worker6) Compute(x int32) int32 {
	var sum int32
	for i := int32(0); i < 5; i++ {
		sum += (x << i) - i
	}
	return sum
}

func (Worker6) Tag() Tag { return Tag6 }

// Worker7 iterates a linear congruence modulo the prime 999983. The
// remainder truncates toward zero, so negative inputs stay negative.
type Worker7 struct{}

func (Worker7) Compute(x int32) int32 {
	r := x
	for i := int32(1); i <= 5; i++ {
		r = ((r + i) * 7) % 999983
	}
	return r
}

func (Worker7) Tag() Tag { return Tag7 }

// Worker8 is the product x(x-1)(x+1).
type Worker8 struct{}

func (Worker8) Compute(x int32) int32 {
	return x * (x - 1) * (x + 1)
}

func (Worker8) Tag() Tag { return Tag8 }

// Worker9 applies five rounds of accum ^= accum<<1.
type Worker9 struct{}

func (Worker9) Compute(x int32) int32 {
	accum := x
	for i := 0; i < 5; i++ {
		accum ^= accum << 1
	}
	return accum
}

func (Worker9) Tag() Tag { return Tag9 }

// Variants holds the canonical instance of each variant, indexed by tag.
var Variants = [NumVariants]Worker{
	Worker0{}, Worker1{}, Worker2{}, Worker3{}, Worker4{},
	Worker5{}, Worker6{}, Worker7{}, Worker8{}, Worker9{},
}

// ComputeFuncs exposes each variant's Compute as a plain function value,
// indexed by tag.
var ComputeFuncs = [NumVariants]func(int32) int32{
	Worker0{}.Compute, Worker1{}.Compute, Worker2{}.Compute, Worker3{}.Compute, Worker4{}.Compute,
	Worker5{}.Compute, Worker6{}.Compute, Worker7{}.Compute, Worker8{}.Compute, Worker9{}.Compute,
}

// Of returns the canonical variant for tag. It panics on an invalid tag.
func Of(tag Tag) Worker {
	if !tag.Valid() {
		panic(fmt.Sprintf("worker: invalid tag %d", uint8(tag)))
	}
	return Variants[tag]
}

// Tags returns the first n tags in ascending order. n is clamped to
// [0, NumVariants].
func Tags(n int) []Tag {
	n = max(0, min(n, NumVariants))
	tags := make([]Tag, n)
	for i := range tags {
		tags[i] = Tag(i)
	}
	return tags
}
