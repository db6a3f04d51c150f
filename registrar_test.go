package coro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrarAlignmentAndOffsets(t *testing.T) {
	var r registrar

	d1 := r.register(1, 1, nil, nil)
	d2 := r.register(8, 8, nil, nil)
	d3 := r.register(2, 2, nil, nil)

	assert.Equal(t, 0, d1.offset)
	assert.Equal(t, 8, d2.offset, "d2 must align up to its own alignment")
	assert.Equal(t, 16, d3.offset)

	size := r.freezeAndSize()
	assert.Equal(t, 18, size)
}

func TestRegistrarFreezeRejectsLateGrowth(t *testing.T) {
	var r registrar
	r.register(4, 4, nil, nil)
	_ = r.freezeAndSize()

	assert.PanicsWithValue(t, ErrRegistrarFrozen, func() {
		r.register(64, 8, nil, nil)
	})
}

func TestRegistrarFreezeAllowsRegistrationWithinExistingSize(t *testing.T) {
	var r registrar
	r.register(4, 4, nil, nil)
	r.register(60, 4, nil, nil)
	total := r.freezeAndSize()
	require.Equal(t, 64, total)

	// A block already this large was accounted for before freezing, so a
	// later registration that doesn't grow the total must not panic.
	assert.NotPanics(t, func() {
		r.register(0, 1, nil, nil)
	})
}

func TestContextLocalBlockConstructsLazilyAndOnce(t *testing.T) {
	var r registrar
	calls := 0
	d := r.register(8, 8, func(b []byte) { calls++ }, nil)
	_ = r.freezeAndSize()

	b := newContextLocalBlock(&r)
	_ = b.slot(d)
	_ = b.slot(d)
	assert.Equal(t, 1, calls, "construct must run exactly once per slot per block")
}

func TestContextLocalBlockTeardownReverseOrder(t *testing.T) {
	var r registrar
	var order []int

	d1 := r.register(1, 1, func(b []byte) {}, func(b []byte) { order = append(order, 1) })
	d2 := r.register(1, 1, func(b []byte) {}, func(b []byte) { order = append(order, 2) })
	_ = r.freezeAndSize()

	b := newContextLocalBlock(&r)
	_ = b.slot(d1)
	_ = b.slot(d2)

	b.teardown()
	assert.Equal(t, []int{2, 1}, order, "destructors run in reverse registration order")
}

func TestContextLocalBlockTeardownIsIdempotent(t *testing.T) {
	var r registrar
	calls := 0
	d := r.register(1, 1, func(b []byte) {}, func(b []byte) { calls++ })
	_ = r.freezeAndSize()

	b := newContextLocalBlock(&r)
	_ = b.slot(d)

	b.teardown()
	b.teardown()
	assert.Equal(t, 1, calls, "a second teardown must not re-destroy an already-torn-down slot")
}
