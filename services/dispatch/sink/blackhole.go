// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink consumes compute results so the compiler cannot discard the
// calls that produced them.
//
// A Blackhole folds every consumed value into an order-sensitive digest and
// counts the values. The digest is published to the package-level Sink once
// per traversal. Stores through a pointer receiver whose target escapes to
// the heap are not eliminated by the gc compiler, and the atomic publish
// keeps the final digest observable; both assumptions must be re-checked on
// a different toolchain.
package sink

import "sync/atomic"

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Sink receives the last published digest.
var Sink atomic.Uint64

// Blackhole is a single-threaded consumption sink.
//
// Thread Safety: Not safe for concurrent use. Each traversal owns one.
type Blackhole struct {
	digest uint64
	calls  uint64
}

// New returns a reset Blackhole.
func New() *Blackhole {
	return &Blackhole{digest: offset64}
}

// Consume folds v into the digest and counts it.
func (b *Blackhole) Consume(v int32) {
	b.digest = (b.digest ^ uint64(uint32(v))) * prime64
	b.calls++
}

// Calls returns the number of values consumed since the last Reset.
func (b *Blackhole) Calls() uint64 { return b.calls }

// Digest returns the order-sensitive digest of the consumed values.
func (b *Blackhole) Digest() uint64 { return b.digest }

// Reset clears the digest and the call counter.
func (b *Blackhole) Reset() {
	b.digest = offset64
	b.calls = 0
}

// Publish stores the current digest in Sink.
func (b *Blackhole) Publish() {
	Sink.Store(b.digest)
}

// DigestOf returns the digest a fresh Blackhole would hold after consuming
// values in order.
func DigestOf(values ...int32) uint64 {
	b := New()
	for _, v := range values {
		b.Consume(v)
	}
	return b.Digest()
}
