// Package zone implements the zoned buddy allocator: a set of independent
// per-zone buddy allocators, arranged into preference classes, selected by
// a watermark-aware policy that keeps reserve headroom available to
// atomic and emergency callers.
package zone

import (
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/list"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/sync"
)

// Kind identifies the purpose a zone's pages are set aside for. Bit-exact
// values are not part of the contract; only identity and ordering within a
// Preference matter.
type Kind uint8

// Zone kinds. Bootstrap wires these to whichever physical ranges the
// platform reports; a given kind may be absent on a machine that has no
// matching memory (e.g. no sub-16MB DMA range).
const (
	KindDMA Kind = iota
	KindKernelData
	KindKernelModule
	KindKernelObject
	KindCode
	KindUser
)

// Flag bits accepted by AllocateBlock, mirroring the request-time policy
// knobs a caller can set.
type Flag uint8

const (
	// Atomic admits the request into the reserve pool's atomic (7/8) band.
	Atomic Flag = 1 << iota

	// NoFailure admits the request into the reserve pool's emergency
	// (1/8) band, on top of everything Atomic admits.
	NoFailure

	// ZoneRequired forces a failure rather than descending to the next
	// preference class when the caller's chosen zone cannot satisfy the
	// request.
	ZoneRequired

	// NoCache asks the page frame manager to bypass any future per-CPU
	// magazine cache. The zone allocator itself is agnostic to it; it is
	// threaded through so the facade in pmm can honor it once such a
	// cache exists.
	NoCache

	// NoInterrupt tells callers below this one that local interrupts are
	// already disabled, so AcquireIRQSafe must not attempt to toggle
	// them. The zone allocator does not need this itself since its own
	// lock acquisition already detects the current interrupt state; it
	// is preserved here purely as part of the exported flag surface.
	NoInterrupt
)

// State classifies a zone's fitness for a request of a given size, based
// purely on the zone's current counters. It says nothing about the
// caller's flags; combine with a Flag set via action to decide what to do.
type State uint8

const (
	// Allocable means the request fits without touching the reserve pool.
	Allocable State = iota

	// ReserveOverlap means the request needs to dip into the atomic (7/8)
	// band of the reserve pool.
	ReserveOverlap

	// BarrierOverlap means the request needs to dip into the emergency
	// (1/8) band of the reserve pool.
	BarrierOverlap

	// LowOnMemory means the zone does not have enough total free pages
	// to ever satisfy the request, regardless of reserve.
	LowOnMemory
)

// Action is the outcome of combining a State with the caller's flags.
type Action uint8

const (
	// ActionAllocate means the zone allocator should hand this zone's
	// buddy allocator the request.
	ActionAllocate Action = iota

	// ActionGotoNext means this zone cannot serve the request but the
	// caller did not require it specifically; try the next zone.
	ActionGotoNext

	// ActionRetFail means this zone cannot serve the request and the
	// caller required exactly this zone; stop searching.
	ActionRetFail
)

// Zone is a contiguous, independently-locked range of page frames managed
// by one buddy.Allocator. It is a passive container: all policy decisions
// (which zone to use, when to fall back) live in Allocator, not here.
type Zone struct {
	kind Kind

	// id identifies this zone within its owning Allocator's zone table.
	// It is written into every one of the zone's block descriptors so
	// that FreeBlock can recover the owning zone without a search. It is
	// assigned once, by Allocator.Register.
	id uint16

	buddy buddy.Allocator

	memorySize      uint32
	memoryAllocated uint32
	memoryReserved  uint32

	preferenceIndex int
	ringLink        list.Elem

	lock sync.Spinlock

	// baseFrame is the physical frame number of table[0]. It lets the
	// page frame manager translate between a block's table-relative
	// index and a global physical frame number without this package
	// needing to know about pmm.Frame (which would create an import
	// cycle, since pmm builds its facade on top of this package).
	baseFrame uintptr
}

// Configure prepares z to manage table, whose entries must all belong to
// this zone. reserved sets the initial reserve pool size in pages; it can
// be adjusted later with SetReserved. The zone starts with no pages marked
// free; callers seed usable ranges with MarkFree.
func (z *Zone) Configure(kind Kind, table []buddy.Block, highestOrder mem.PageOrder, reserved uint32) {
	z.kind = kind
	z.buddy.Configure(table, highestOrder)
	z.memorySize = uint32(len(table))
	z.memoryAllocated = 0
	z.memoryReserved = reserved
}

// bindID stamps id into every block descriptor of this zone's table. It is
// called once by Allocator.Register, after the zone has been assigned its
// place in the allocator's zone table, so blocks always carry a valid
// back-reference before any allocation can occur.
func (z *Zone) bindID(id uint16) {
	z.id = id
	table := z.buddy.Table()
	for i := range table {
		table[i].SetZoneIndex(id)
	}
}

// ID returns this zone's index within its owning Allocator's zone table.
func (z *Zone) ID() uint16 { return z.id }

// MarkFree seeds a free region of the zone's descriptor table, starting at
// a table-relative index, sized 2^order pages. Used once at boot.
func (z *Zone) MarkFree(index int, order mem.PageOrder) {
	z.buddy.MarkFree(index, order)
}

// Kind returns the zone's memory kind.
func (z *Zone) Kind() Kind { return z.kind }

// Table exposes the zone's backing descriptor table, so the page frame
// manager can translate between physical frames and blocks.
func (z *Zone) Table() []buddy.Block { return z.buddy.Table() }

// IndexOf returns block's position relative to the start of this zone's
// table.
func (z *Zone) IndexOf(block *buddy.Block) int { return z.buddy.IndexOf(block) }

// BlockAt returns a pointer to this zone's descriptor at table-relative
// index.
func (z *Zone) BlockAt(index int) *buddy.Block { return &z.buddy.Table()[index] }

// BaseFrame returns the physical frame number of this zone's first
// descriptor, as set by SetBaseFrame during bootstrap.
func (z *Zone) BaseFrame() uintptr { return z.baseFrame }

// SetBaseFrame records the physical frame number backing table[0]. Called
// once, at boot, when the zone's physical range is known.
func (z *Zone) SetBaseFrame(frame uintptr) { z.baseFrame = frame }

// MemorySize returns the total number of pages this zone manages.
func (z *Zone) MemorySize() uint32 { return z.memorySize }

// MemoryAllocated returns the number of pages currently handed out. Only
// locally consistent: read it under the zone's lock for a coherent value.
func (z *Zone) MemoryAllocated() uint32 { return z.memoryAllocated }

// MemoryReserved returns the size of the reserve pool in pages.
func (z *Zone) MemoryReserved() uint32 { return z.memoryReserved }

// SetReserved adjusts the reserve pool size. The result is clamped so
// that the reserve never exceeds the zone's current free page count,
// even though reserve adjustments themselves are not otherwise validated
// against in-flight allocations.
func (z *Zone) SetReserved(reserved uint32) {
	free := z.memorySize - z.memoryAllocated
	if reserved > free {
		reserved = free
	}
	z.memoryReserved = reserved
}

// freePages returns the zone's current free page count.
func (z *Zone) freePages() uint32 {
	return z.memorySize - z.memoryAllocated
}

// Report is a point-in-time snapshot of a zone's counters, used only for
// boot-time and diagnostic logging. It is read under the zone's lock but
// is stale the instant the lock is released.
type Report struct {
	Kind      Kind
	ID        uint16
	Size      uint32
	Allocated uint32
	Reserved  uint32
}

// Report captures z's current counters under its lock.
func (z *Zone) Report() Report {
	guard := sync.AcquireIRQSafe(&z.lock)
	r := Report{
		Kind:      z.kind,
		ID:        z.id,
		Size:      z.memorySize,
		Allocated: z.memoryAllocated,
		Reserved:  z.memoryReserved,
	}
	guard.Release()
	return r
}

// status computes this zone's State for a request of the given page count.
// Must be called with the zone lock held.
func (z *Zone) status(requestPages uint32) State {
	free := z.freePages()

	if requestPages > free {
		return LowOnMemory
	}

	reserved := z.memoryReserved
	var available uint32
	if free > reserved {
		available = free - reserved
	}
	if requestPages <= available {
		return Allocable
	}

	atomicBand := (7 * reserved) / 8
	if requestPages <= available+atomicBand {
		return ReserveOverlap
	}

	return BarrierOverlap
}

// action derives the Action for a State given the caller's flags.
func action(state State, flags Flag) Action {
	switch state {
	case Allocable:
		return ActionAllocate
	case ReserveOverlap:
		if flags&(Atomic|NoFailure) != 0 {
			return ActionAllocate
		}
	case BarrierOverlap:
		if flags&NoFailure != 0 {
			return ActionAllocate
		}
	case LowOnMemory:
		// Never satisfiable regardless of flags.
	}

	if flags&ZoneRequired != 0 {
		return ActionRetFail
	}
	return ActionGotoNext
}
