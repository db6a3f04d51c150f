package coro

import "unsafe"

// crlsBlock is a coroutine's CRLS block: same slot-block mechanics as TLS,
// but reachable only through current_crls (spec.md §4.3). It lives inside
// the owning *Coroutine, or as a thread's "default" block while no coroutine
// is running on it.
type crlsBlock struct {
	*contextLocalBlock
}

func newCRLSBlock() *crlsBlock {
	return &crlsBlock{contextLocalBlock: newContextLocalBlock(&crlsRegistrar)}
}

// CoroutineLocal models a single coroutine-local variable, registered once
// via NewCoroutineLocal, read/written through a two-step lookup: current_crls
// via TLS, then block_bytes + descriptor.offset (spec.md §4.3).
type CoroutineLocal[T any] struct {
	desc *slotDescriptor
}

// NewCoroutineLocal registers a new coroutine-local variable. Must be called
// before any scheduler starts running; panics with ErrRegistrarFrozen
// otherwise.
func NewCoroutineLocal[T any](zero func() T) *CoroutineLocal[T] {
	var sample T
	size := int(unsafe.Sizeof(sample))

	construct := func(b []byte) {
		v := zero()
		*(*T)(unsafe.Pointer(&b[0])) = v
	}

	d := crlsRegistrar.register(size, int(unsafe.Alignof(sample)), construct, nil)
	return &CoroutineLocal[T]{desc: d}
}

// Get returns a pointer to the current coroutine's (or, outside any
// coroutine, the thread's default) copy of the variable.
func (c *CoroutineLocal[T]) Get() *T {
	block := currentTLS().currentCRLS
	s := block.slot(c.desc)
	return (*T)(unsafe.Pointer(&s[0]))
}
