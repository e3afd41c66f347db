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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/dispatchperf/services/dispatch/sink"
	"github.com/AleutianAI/dispatchperf/services/dispatch/strategy"
	"github.com/AleutianAI/dispatchperf/services/dispatch/telemetry"
	"github.com/AleutianAI/dispatchperf/services/dispatch/workload"
)

func passing(name string, tags ...string) Property {
	return Property{Name: name, Tags: tags, Check: func(context.Context) error { return nil }}
}

func failing(name string, err error) Property {
	return Property{Name: name, Check: func(context.Context) error { return err }}
}

type errorCounter struct {
	telemetry.NopSink
	n atomic.Int32
}

func (e *errorCounter) RecordError(context.Context, *telemetry.ErrorData) error {
	e.n.Add(1)
	return nil
}

func TestDefaultVerifier_Passes(t *testing.T) {
	v := NewDefaultVerifier(strategy.DefaultRegistry())

	report, err := v.Verify(context.Background())
	require.NoError(t, err)
	for _, p := range report.Failed() {
		t.Errorf("property %s failed: %v", p.Name, p.Error)
	}
	assert.True(t, report.Passed)
	assert.Len(t, report.Properties, 10)
	assert.NoError(t, report.Err())
}

func TestVerifier_ReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	counter := &errorCounter{}
	v := NewVerifier(passing("a"), failing("b", boom), passing("c"))

	report, err := v.Verify(context.Background(), WithSink(counter))
	require.NoError(t, err)

	assert.False(t, report.Passed)
	require.Len(t, report.Properties, 3)
	assert.Equal(t, "a", report.Properties[0].Name)
	assert.True(t, report.Properties[0].Passed)
	assert.False(t, report.Properties[1].Passed)
	assert.ErrorIs(t, report.Properties[1].Error, boom)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Name)

	assert.ErrorIs(t, report.Err(), ErrVerificationFailed)
	assert.ErrorIs(t, report.Err(), boom)
	assert.Equal(t, int32(1), counter.n.Load())
}

func TestVerifier_Tags(t *testing.T) {
	v := NewVerifier(passing("w", "workload"), passing("s", "strategy"))

	report, err := v.Verify(context.Background(), WithTags("strategy"))
	require.NoError(t, err)
	require.Len(t, report.Properties, 1)
	assert.Equal(t, "s", report.Properties[0].Name)

	_, err = v.Verify(context.Background(), WithTags("nothing"))
	assert.ErrorIs(t, err, ErrNoProperties)
}

func TestVerifier_NilCheck(t *testing.T) {
	report, err := NewVerifier(Property{Name: "empty"}).Verify(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Properties[0].Error, ErrNilCheck)
}

func TestVerifier_PropertyTimeout(t *testing.T) {
	slow := Property{
		Name: "slow",
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Timeout: 10 * time.Millisecond,
	}

	report, err := NewVerifier(slow).Verify(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Properties[0].Error, context.DeadlineExceeded)
}

func TestVerifier_StopOnFailure(t *testing.T) {
	var ran atomic.Int32
	props := []Property{failing("first", errors.New("x"))}
	for i := 0; i < 5; i++ {
		props = append(props, Property{Name: "later", Check: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	report, err := NewVerifier(props...).Verify(context.Background(),
		WithParallelism(1),
		WithStopOnFailure(true),
	)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Zero(t, ran.Load())
	for _, p := range report.Properties[1:] {
		assert.ErrorIs(t, p.Error, context.Canceled)
	}
}

func TestVerifier_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := NewVerifier(passing("a")).Verify(nil)
	assert.Error(t, err)
}

func TestProperties_CatchBrokenStrategy(t *testing.T) {
	reg := strategy.DefaultRegistry()
	// Visits slots in reverse: right call count, wrong sequence.
	reg.MustRegister(&strategy.Strategy{
		Name: "reversed",
		Run: func(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
			for i := wl.Len() - 1; i >= 0; i-- {
				s.Consume(wl.At(i).Compute(int32(i)))
			}
		},
	})
	// Drops a call.
	reg.MustRegister(&strategy.Strategy{
		Name: "short",
		Run: func(wl *workload.Workload, _ *workload.Buckets, s *sink.Blackhole) {
			for i := 1; i < wl.Len(); i++ {
				s.Consume(wl.At(i).Compute(int32(i)))
			}
		},
	})

	v := NewVerifier(DefaultProperties(reg, []Case{{Size: 10, NumWorkers: 3}})...)
	report, err := v.Verify(context.Background(), WithTags(TagStrategy))
	require.NoError(t, err)

	byName := map[string]PropertyResult{}
	for _, p := range report.Properties {
		byName[p.Name] = p
	}
	assert.False(t, byName["call-count"].Passed)
	// Custom strategies are not part of the sequence reference set.
	assert.True(t, byName["sequence-equivalence"].Passed)
}

func TestDefaultCases(t *testing.T) {
	cases := DefaultCases()
	assert.Len(t, cases, 90)
	assert.Equal(t, Case{Size: 0, NumWorkers: 1}, cases[0])
	assert.Equal(t, "size=1000/workers=10", cases[len(cases)-1].String())
}
