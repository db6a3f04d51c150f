package coro

import (
	"runtime"
	"sync"
	"unsafe"
)

// getGoroutineID parses the current goroutine's id out of its stack trace
// header ("goroutine 123 [running]:..."). Go exposes no public API for this;
// the approach mirrors how the teacher's event loop identifies "the loop
// goroutine" for its fast-path thread-affinity checks.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// tlsBlock is one goroutine-as-thread's TLS block: a contiguous byte buffer
// per spec.md §3, plus the thread's default CRLS block (used when no
// coroutine is active on it) and the current_crls pointer the scheduler
// swaps on every context switch (spec.md §4.2).
type tlsBlock struct {
	*contextLocalBlock
	defaultCRLS *crlsBlock
	currentCRLS *crlsBlock // swapped by the scheduler on each context switch
	scheduler   *Scheduler // the scheduler (if any) attached to this thread
}

var (
	tlsMu     sync.Mutex
	tlsBlocks = map[uint64]*tlsBlock{}
)

// aliasTLS makes gid resolve to b instead of lazily creating its own block.
// A coroutine's task body runs on a dedicated backing goroutine distinct
// from the one that calls Scheduler.Run, so without this alias, TLS/CRLS
// lookups made from inside the task body would resolve against the wrong
// goroutine's block and never observe the current_crls swap Coroutine.resume
// performs (spec.md §4.2). Coroutine.start calls this once, immediately
// after its backing goroutine is unblocked for the first time, aliasing it
// to its scheduler's own TLS block so both sides of the hand-off share one
// current_crls field.
func aliasTLS(gid uint64, b *tlsBlock) {
	tlsMu.Lock()
	tlsBlocks[gid] = b
	tlsMu.Unlock()
}

// unaliasTLS forgets gid's alias once its coroutine has finished for good.
func unaliasTLS(gid uint64) {
	tlsMu.Lock()
	delete(tlsBlocks, gid)
	tlsMu.Unlock()
}

// currentTLS returns (lazily creating) the calling goroutine's TLS block.
func currentTLS() *tlsBlock {
	gid := getGoroutineID()

	tlsMu.Lock()
	defer tlsMu.Unlock()

	if b, ok := tlsBlocks[gid]; ok {
		return b
	}

	b := &tlsBlock{contextLocalBlock: newContextLocalBlock(&tlsRegistrar)}
	b.defaultCRLS = newCRLSBlock()
	b.currentCRLS = b.defaultCRLS
	tlsBlocks[gid] = b
	return b
}

// releaseTLS tears down and forgets the calling goroutine's TLS block.
// Destruction retries per contextLocalBlock.teardown (spec.md §4.2). Callers
// (the scheduler's run loop) invoke this when a "thread" (goroutine acting as
// a scheduler's main context) exits, since Go has no native thread-exit hook.
func releaseTLS() {
	gid := getGoroutineID()

	tlsMu.Lock()
	b, ok := tlsBlocks[gid]
	if ok {
		delete(tlsBlocks, gid)
	}
	tlsMu.Unlock()

	if !ok {
		return
	}
	b.defaultCRLS.teardown()
	b.contextLocalBlock.teardown()
}

// ThreadLocal models a single thread-local variable of type T, registered
// once (typically at package init) via NewThreadLocal.
type ThreadLocal[T any] struct {
	desc *slotDescriptor
}

// NewThreadLocal registers a new thread-local variable. zero is used to
// initialize each thread's copy the first time it's accessed. Must be called
// before any scheduler starts running (spec.md §4.1); panics with
// ErrRegistrarFrozen otherwise.
func NewThreadLocal[T any](zero func() T) *ThreadLocal[T] {
	var sample T
	size := int(unsafe.Sizeof(sample))

	construct := func(b []byte) {
		v := zero()
		*(*T)(unsafe.Pointer(&b[0])) = v
	}

	d := tlsRegistrar.register(size, int(unsafe.Alignof(sample)), construct, nil)
	return &ThreadLocal[T]{desc: d}
}

// Get returns a pointer to the calling goroutine's copy of the variable,
// constructing it on first access.
func (t *ThreadLocal[T]) Get() *T {
	b := currentTLS()
	s := b.slot(t.desc)
	return (*T)(unsafe.Pointer(&s[0]))
}
