// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		w    Worker
		in   int32
		want int32
	}{
		{"worker0 zero", Worker0{}, 0, -10},
		{"worker1 zero", Worker1{}, 0, 154},
		{"worker2 zero", Worker2{}, 0, 0xABCD},
		{"worker2 one", Worker2{}, 1, 2 + 0xABCD},
		{"worker3 zero", Worker3{}, 0, 8},
		{"worker3 one", Worker3{}, 1, 15},
		{"worker4 zero", Worker4{}, 0, 0x55AA55AA},
		{"worker5 zero", Worker5{}, 0, 6},
		{"worker5 root", Worker5{}, -2, 0},
		{"worker6 zero", Worker6{}, 0, -10},
		{"worker6 one", Worker6{}, 1, 21},
		{"worker7 zero", Worker7{}, 0, 22869},
		{"worker8 two", Worker8{}, 2, 6},
		{"worker9 one", Worker9{}, 1, 51},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Compute(tt.in); got != tt.want {
				t.Errorf("Compute(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompute_Wraparound(t *testing.T) {
	inputs := []int32{math.MaxInt32, math.MinInt32, 65536, -65537, 1 << 20}

	for _, x := range inputs {
		u := uint32(x)
		assert.Equal(t, int32(u*(u-1)*(u+1)), Worker8{}.Compute(x), "worker8(%d)", x)
		assert.Equal(t, int32((u+1)*(u+2)*(u+3)), Worker5{}.Compute(x), "worker5(%d)", x)
		assert.Equal(t, int32(u*12345)^0x55AA55AA, Worker4{}.Compute(x), "worker4(%d)", x)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	for _, w := range Variants {
		for x := int32(-50); x < 50; x++ {
			require.Equal(t, w.Compute(x), w.Compute(x), "%s(%d)", w.Tag(), x)
		}
	}
}

func TestCompute_VariantsDiffer(t *testing.T) {
	// Over a small input range no two variants agree everywhere.
	for i := 0; i < NumVariants; i++ {
		for j := i + 1; j < NumVariants; j++ {
			same := true
			for x := int32(0); x < 16; x++ {
				if Variants[i].Compute(x) != Variants[j].Compute(x) {
					same = false
					break
				}
			}
			assert.False(t, same, "%s and %s are indistinguishable", Tag(i), Tag(j))
		}
	}
}

func TestVariants_TagsMatchIndex(t *testing.T) {
	for i, w := range Variants {
		assert.Equal(t, Tag(i), w.Tag())
		assert.Equal(t, w, Of(Tag(i)))
	}
}

func TestComputeFuncs_MatchVariants(t *testing.T) {
	for i, fn := range ComputeFuncs {
		for _, x := range []int32{-7, 0, 3, 999, math.MaxInt32} {
			assert.Equal(t, Variants[i].Compute(x), fn(x), "tag %d input %d", i, x)
		}
	}
}

func TestTag(t *testing.T) {
	assert.True(t, Tag0.Valid())
	assert.True(t, Tag9.Valid())
	assert.False(t, Tag(NumVariants).Valid())
	assert.Equal(t, "worker3", Tag3.String())
}

func TestOf_InvalidTagPanics(t *testing.T) {
	assert.Panics(t, func() { Of(Tag(42)) })
}

func TestTags(t *testing.T) {
	assert.Equal(t, []Tag{Tag0, Tag1, Tag2}, Tags(3))
	assert.Len(t, Tags(25), NumVariants)
	assert.Empty(t, Tags(-1))
}
