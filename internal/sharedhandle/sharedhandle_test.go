package sharedhandle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	running bool
	starts  int
	stops   int
}

func newHandle(r *resource) *SharedHandle[*resource] {
	return New(r, func(r *resource) error {
		r.running = true
		r.starts++
		return nil
	}, func(r *resource) error {
		r.running = false
		r.stops++
		return nil
	})
}

func TestStartStopOnlyOnTransitions(t *testing.T) {
	r := &resource{}
	h := newHandle(r)

	require.NoError(t, h.Acquire())
	assert.True(t, r.running)
	assert.Equal(t, 1, r.starts)

	// Further acquires are refcount-only no-ops.
	require.NoError(t, h.Acquire())
	require.NoError(t, h.Acquire())
	assert.Equal(t, 1, r.starts)
	assert.Equal(t, 3, h.Count())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	assert.True(t, r.running, "resource stays held until the last release")
	assert.Equal(t, 0, r.stops)

	require.NoError(t, h.Release())
	assert.False(t, r.running)
	assert.Equal(t, 1, r.stops)
}

func TestHeldIffCountPositive(t *testing.T) {
	r := &resource{}
	h := newHandle(r)

	// Exercise an arbitrary acquire/release sequence and check the
	// invariant at every step: running <=> count > 0.
	steps := []bool{true, true, false, true, false, false, true, false}
	for i, acquire := range steps {
		if acquire {
			require.NoError(t, h.Acquire())
		} else {
			require.NoError(t, h.Release())
		}
		assert.Equal(t, h.Count() > 0, r.running, "step %d", i)
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	h := newHandle(&resource{})
	assert.Panics(t, func() { h.Release() })
}

func TestStartErrorDoesNotHold(t *testing.T) {
	r := &resource{}
	failing := New(r, func(*resource) error {
		return assert.AnError
	}, func(*resource) error {
		r.stops++
		return nil
	})

	require.Error(t, failing.Acquire())
	assert.Equal(t, 0, failing.Count())
}
