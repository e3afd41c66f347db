// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlackhole_CountsCalls(t *testing.T) {
	b := New()
	for i := int32(0); i < 100; i++ {
		b.Consume(i)
	}
	assert.Equal(t, uint64(100), b.Calls())
}

func TestBlackhole_OrderSensitive(t *testing.T) {
	assert.NotEqual(t, DigestOf(1, 2, 3), DigestOf(3, 2, 1))
	assert.Equal(t, DigestOf(1, 2, 3), DigestOf(1, 2, 3))
}

func TestBlackhole_ResetMatchesNew(t *testing.T) {
	b := New()
	b.Consume(42)
	b.Consume(-7)
	b.Reset()

	assert.Equal(t, New().Digest(), b.Digest())
	assert.Zero(t, b.Calls())
	assert.Equal(t, DigestOf(), b.Digest())
}

func TestBlackhole_NegativeValuesDistinct(t *testing.T) {
	assert.NotEqual(t, DigestOf(-1), DigestOf(1))
}

func TestBlackhole_Publish(t *testing.T) {
	b := New()
	b.Consume(5)
	b.Publish()
	assert.Equal(t, b.Digest(), Sink.Load())
}
