// Package sync provides the locking primitives used by the physical memory
// allocator. Unlike the standard library's sync package, Spinlock never
// parks the calling goroutine: it busy-waits, which is the only option
// available to code that may run with interrupts disabled on a CPU that
// has not yet brought up its scheduler.
package sync

import (
	"sync/atomic"

	"github.com/SukantPal/Silcos-Kernel/kernel/cpu"
)

var (
	// yieldFn is invoked between failed acquisition attempts. Tests
	// substitute runtime.Gosched to avoid starving other goroutines;
	// the real kernel build leaves it as a no-op since there is no
	// scheduler to yield to while spinning with interrupts disabled.
	yieldFn = func() {}

	// The following indirections let tests exercise AcquireIRQSafe and
	// ReleaseIRQSafe without depending on the arch-specific, body-less
	// functions in the cpu package.
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	interruptsEnabledFn = cpu.InterruptsEnabled
)

// Spinlock implements a lock where each task trying to acquire it
// busy-waits until the lock becomes available. It contains no fairness or
// ordering guarantees beyond eventual acquisition.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Re-acquiring a lock already held by the current task deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		yieldFn()
	}
}

// TryToAcquire attempts to acquire the lock without blocking. It returns
// true if the lock was free and is now held by the caller.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock, allowing other tasks to acquire it.
// Calling Release on a lock that is not held has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// IRQGuard couples a held Spinlock with the local-CPU interrupt state that
// was in effect immediately before the lock was acquired. Zones and slab
// caches always enter their critical sections through AcquireIRQSafe so
// that a critical section entered from thread context cannot be preempted
// by an interrupt handler that tries to re-acquire the same lock, and so
// that releasing the guard never re-enables interrupts that were already
// off when the guard was taken.
type IRQGuard struct {
	lock                  *Spinlock
	interruptsWereEnabled bool
}

// AcquireIRQSafe disables local interrupts (if not already disabled),
// spins until lock is acquired, and returns a guard that Release restores
// interrupt state from. Safe to call from a context that already has
// interrupts disabled: the prior state is preserved, not clobbered.
func AcquireIRQSafe(lock *Spinlock) IRQGuard {
	wereEnabled := interruptsEnabledFn()
	if wereEnabled {
		disableInterruptsFn()
	}

	lock.Acquire()

	return IRQGuard{lock: lock, interruptsWereEnabled: wereEnabled}
}

// Release unlocks the guarded spinlock and restores the interrupt state
// captured when the guard was acquired.
func (g IRQGuard) Release() {
	g.lock.Release()
	if g.interruptsWereEnabled {
		enableInterruptsFn()
	}
}
