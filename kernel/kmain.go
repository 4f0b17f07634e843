package kernel

import (
	_ "unsafe" // required for go:linkname

	"github.com/SukantPal/Silcos-Kernel/kernel/goruntime"
	"github.com/SukantPal/Silcos-Kernel/kernel/hal"
	"github.com/SukantPal/Silcos-Kernel/kernel/hal/multiboot"
	"github.com/SukantPal/Silcos-Kernel/kernel/kfmt/early"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/zone"
)

// maxZonePages bounds how much of any single usable memory region this
// bootstrap hands to the kernel-data zone, so its descriptor table (one
// buddy.Block per page) stays a modest, statically-sized array rather
// than growing with however much RAM the host happens to report.
const maxZonePages = 32768 // 128MB at a 4K page size

// kernelDataZone and its backing descriptor table are package-level,
// statically-sized storage rather than heap-allocated at boot: the very
// first allocation the zone/buddy layer will be asked to serve is the Go
// runtime's own heap growth (see goruntime.SetManager), so the zone that
// backs that growth cannot itself depend on a working heap to exist.
var (
	kernelDataZone  zone.Zone
	kernelDataTable [maxZonePages]buddy.Block

	pageManager pmm.Manager
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	// Initialize and clear the terminal
	hal.InitTerminal()
	hal.ActiveTerminal.Clear()
	early.Printf("Starting gopher-os\n")

	pages, baseFrame := largestUsableRegion()
	if pages == 0 {
		early.Printf("no usable memory region reported by the bootloader; halting\n")
		for {
		}
	}

	highestOrder := mem.PageOrder(0)
	for (1 << uint(highestOrder+1)) <= pages {
		highestOrder++
	}
	pages = 1 << uint(highestOrder)

	kernelDataZone.Configure(zone.KindKernelData, kernelDataTable[:pages], highestOrder, 0)
	kernelDataZone.SetBaseFrame(baseFrame)
	kernelDataZone.MarkFree(0, highestOrder)

	pageManager.RegisterZone(&kernelDataZone, 0)
	goruntime.SetManager(&pageManager)

	early.Printf("physical memory manager ready: %d pages starting at frame %d\n", pages, baseFrame)
	for _, r := range pageManager.Report() {
		early.Printf("zone %d: kind=%d size=%d allocated=%d reserved=%d\n", r.ID, r.Kind, r.Size, r.Allocated, r.Reserved)
	}

	// Prevent Kmain from returning
	for {
	}
}

// largestUsableRegion scans the bootloader-provided memory map and returns
// the page count and base frame number of the largest MemAvailable region,
// capped at maxZonePages.
func largestUsableRegion() (pages int, baseFrame uintptr) {
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type != multiboot.MemAvailable {
			return true
		}

		regionPages := int(mem.Size(entry.Length).Pages())
		if regionPages > maxZonePages {
			regionPages = maxZonePages
		}

		if regionPages > pages {
			pages = regionPages
			baseFrame = uintptr(entry.PhysAddress) >> mem.PageShift
		}

		return true
	})

	return pages, baseFrame
}
