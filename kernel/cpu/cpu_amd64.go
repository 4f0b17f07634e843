// Package cpu declares the arch-specific primitives that the rest of the
// kernel treats as opaque hardware operations. The functions in this file
// have no Go body; they are implemented in hand-written amd64 assembly
// that is linked in separately from the rest of the kernel image.
package cpu

// EnableInterrupts enables interrupt handling on the local CPU.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling on the local CPU.
func DisableInterrupts()

// InterruptsEnabled reports whether interrupt handling is currently enabled
// on the local CPU. It is read from the flags register and does not modify
// interrupt state.
func InterruptsEnabled() bool

// Halt stops instruction execution.
func Halt()
