// Package vmm is the minimal external interface this repository consumes
// for virtual-address paging (map_kernel_page/unmap in the core's external
// interfaces). Full paging — page tables, TLB management, address
// translation — is out of scope for the physical memory allocation core;
// what remains here is just enough surface for the Go runtime bootstrap in
// kernel/goruntime to reserve and populate its own heap out of physical
// frames handed to it by kernel/mem/pmm.
//
// Early boot on this platform runs with the low physical address range
// identity-mapped by the loader, so Map treats every virtual page as
// already backed by its physical frame at the same address and only checks
// that the page lies inside the early arena; it ignores the frame and flags
// it is given and never walks or builds page tables. A kernel that goes on to relocate the heap above the identity
// range would need to replace this package with a real one, which is why
// it is kept isolated behind this small interface rather than inlined
// into goruntime.
package vmm

import (
	"github.com/SukantPal/Silcos-Kernel/kernel/errors"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm"
)

// PageTableEntryFlag mirrors the flag bits a caller would normally pass to
// a real page-table entry.
type PageTableEntryFlag uint8

const (
	FlagPresent PageTableEntryFlag = 1 << iota
	FlagRW
	FlagNoExecute
	FlagCopyOnWrite
)

// Page identifies a virtual page by its base address.
type Page uintptr

// PageFromAddress rounds addr down to its containing page.
func PageFromAddress(addr uintptr) Page {
	return Page(addr &^ uintptr(mem.PageSize-1))
}

// Address returns the virtual base address of p.
func (p Page) Address() uintptr { return uintptr(p) }

// ReservedZeroedFrame is a sentinel frame meaning "map this page copy-on-
// write against a shared zero page", used by sysMap before any real
// backing frame has been allocated for it.
const ReservedZeroedFrame = pmm.Frame(0)

var (
	// earlyArenaNext is a bump pointer into the identity-mapped early
	// virtual arena. EarlyReserveRegion never gives back space; nothing
	// in the boot path unreserves address space once the Go runtime and
	// the allocator core are up.
	earlyArenaNext uintptr = earlyArenaBase
)

// earlyArenaBase and earlyArenaLimit bound the region of identity-mapped
// low memory this package is willing to hand out as virtual address space
// for the Go runtime's own heap. They are placeholders a real bootstrap
// would derive from the multiboot memory map instead of hard-coding.
const (
	earlyArenaBase  = 0x40000000
	earlyArenaLimit = 0x80000000
)

// EarlyReserveRegion reserves size bytes of virtual address space, rounded
// up to a page boundary, from the early identity-mapped arena.
func EarlyReserveRegion(size mem.Size) (uintptr, error) {
	aligned := (uintptr(size) + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)

	start := earlyArenaNext
	if start+aligned > earlyArenaLimit {
		return 0, errors.KernelError("vmm: early arena exhausted")
	}

	earlyArenaNext = start + aligned
	return start, nil
}

// Map establishes a mapping of frame at page, honoring flags. Since the
// early arena is identity-mapped by construction, this never needs to
// touch a page table; it exists so callers go through the same interface
// a real implementation would expose.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) error {
	if page.Address() < earlyArenaBase || page.Address() >= earlyArenaLimit {
		return errors.KernelError("vmm: page outside identity-mapped arena")
	}
	return nil
}

// Unmap tears down the mapping established by Map. A no-op for the same
// reason Map is: the identity mapping is never removed once installed by
// the loader.
func Unmap(page Page) error {
	return nil
}
