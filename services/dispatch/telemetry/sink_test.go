// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink counts calls and optionally fails them.
type recordingSink struct {
	mu           sync.Mutex
	measurements int
	errs         int
	flushes      int
	closes       int
	fail         error
}

func (r *recordingSink) RecordMeasurement(context.Context, *MeasurementData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements++
	return r.fail
}

func (r *recordingSink) RecordError(context.Context, *ErrorData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs++
	return r.fail
}

func (r *recordingSink) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return r.fail
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func TestNewMultiSink(t *testing.T) {
	_, err := NewMultiSink()
	assert.ErrorIs(t, err, ErrNoSinks)

	_, err = NewMultiSink(nil, nil)
	assert.ErrorIs(t, err, ErrNoSinks)

	m, err := NewMultiSink(nil, &recordingSink{})
	require.NoError(t, err)
	assert.Len(t, m.sinks, 1)
}

func TestMultiSink_FanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m, err := NewMultiSink(a, b)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.RecordMeasurement(ctx, sampleMeasurement()))
	require.NoError(t, m.RecordError(ctx, &ErrorData{Component: "x"}))
	require.NoError(t, m.Flush(ctx))

	for _, s := range []*recordingSink{a, b} {
		assert.Equal(t, 1, s.measurements)
		assert.Equal(t, 1, s.errs)
		assert.Equal(t, 1, s.flushes)
	}
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing, healthy := &recordingSink{fail: boom}, &recordingSink{}
	m, err := NewMultiSink(failing, healthy)
	require.NoError(t, err)

	err = m.RecordMeasurement(context.Background(), sampleMeasurement())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, healthy.measurements)

	err = m.Flush(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestMultiSink_Close(t *testing.T) {
	a := &recordingSink{}
	m, err := NewMultiSink(a)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.closes)

	err = m.RecordMeasurement(context.Background(), sampleMeasurement())
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.Zero(t, a.measurements)
}

func TestMultiSink_NilInputs(t *testing.T) {
	m, err := NewMultiSink(&recordingSink{})
	require.NoError(t, err)

	//nolint:staticcheck // exercising the nil guard
	assert.ErrorIs(t, m.RecordMeasurement(nil, sampleMeasurement()), ErrNilContext)
	assert.ErrorIs(t, m.RecordMeasurement(context.Background(), nil), ErrNilData)
	assert.ErrorIs(t, m.RecordError(context.Background(), nil), ErrNilData)
}

func TestNopSink(t *testing.T) {
	s := NewNopSink()
	ctx := context.Background()

	assert.NoError(t, s.RecordMeasurement(ctx, sampleMeasurement()))
	assert.NoError(t, s.RecordError(ctx, &ErrorData{}))
	assert.NoError(t, s.Flush(ctx))
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.RecordMeasurement(ctx, nil), ErrNilData)
}
