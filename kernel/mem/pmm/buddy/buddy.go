// Package buddy implements a binary buddy allocator over a caller-supplied
// table of page-frame descriptors. It has no notion of zones, watermarks or
// physical addresses; it only knows how to split and coalesce power-of-two
// runs of table entries. The zone package layers those concerns on top of
// one Allocator per zone.
package buddy

import (
	"unsafe"

	"github.com/SukantPal/Silcos-Kernel/kernel/errors"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/list"
)

// Errors returned by Check. They identify which invariant failed, not
// where; a caller diagnosing corruption is expected to already know which
// zone and block it is inspecting.
var (
	errMismatchedOrder  = errors.KernelError("buddy: free-list member's order does not match its list")
	errNotMarkedFree    = errors.KernelError("buddy: free-list member is not marked free")
	errUncoalescedBuddy = errors.KernelError("buddy: block and its buddy are both free at the same order")
)

// blockFlag holds the per-descriptor state bits described in Block.
type blockFlag uint8

const (
	// flagFree marks a block as sitting on one of the allocator's free
	// lists. Blocks without this flag are either allocated leaves or
	// stale interior descriptors belonging to a still-unsplit ancestor.
	flagFree blockFlag = 1 << iota

	// flagLowerOrder marks a block whose current order is smaller than
	// the allocator's highest order, i.e. any block that exists because
	// something bigger was split down to produce it. It is informational
	// only: Allocate and Free never branch on it, they use the order
	// field and buddy-index arithmetic exclusively.
	flagLowerOrder
)

// Block is the fixed-size descriptor for one page frame. One Block exists
// per page frame in the allocator's table, indexed by the frame's position
// relative to the start of that table.
//
// order is meaningful only while the block is either a free-list head or an
// allocated leaf; for a frame that is currently swallowed inside a larger,
// unsplit ancestor block its order and flags are stale and must not be
// read directly (buddy arithmetic never addresses such a frame directly,
// since XOR against a valid order always lands on a group boundary).
type Block struct {
	order     mem.PageOrder
	zoneIndex uint16
	flags     blockFlag
	link      list.Elem

	// aux is an owner-defined pointer, opaque to the buddy allocator
	// itself. The slab cache stamps it with the *ObjectInfo owning a
	// page-sized block so a generic "which cache owns this page?" probe
	// can exist without the buddy or zone packages knowing about slabs.
	aux unsafe.Pointer
}

// Order returns the block's current order. Only meaningful for a block
// returned by Allocate (until it is freed) or currently linked on a free
// list.
func (b *Block) Order() mem.PageOrder { return b.order }

// ZoneIndex returns the index of the zone that owns this block's backing
// table. It is set once, at configuration time, and never changes.
func (b *Block) ZoneIndex() uint16 { return b.zoneIndex }

// SetZoneIndex records the owning zone. Called exactly once per block while
// the page frame manager is wiring up the zone's frame range.
func (b *Block) SetZoneIndex(zoneIndex uint16) { b.zoneIndex = zoneIndex }

// Free reports whether the block currently sits on a free list.
func (b *Block) Free() bool { return b.flags&flagFree != 0 }

// Aux returns the owner-defined pointer previously stored with SetAux, or
// nil if none has been set.
func (b *Block) Aux() unsafe.Pointer { return b.aux }

// SetAux stamps an owner-defined pointer onto this block's descriptor.
func (b *Block) SetAux(p unsafe.Pointer) { b.aux = p }

// Allocator is a binary buddy allocator over a fixed table of Block
// descriptors. All indices it works with are relative to the start of that
// table; translating between a table-relative index and a global page
// frame number, or a physical address, is the caller's job.
type Allocator struct {
	table        []Block
	highestOrder mem.PageOrder
	freeLists    []list.List
}

// Configure resets the allocator to operate over table, with free lists for
// orders 0..highestOrder. The table is not otherwise touched: callers seed
// initial free regions with MarkFree after Configure returns.
func (a *Allocator) Configure(table []Block, highestOrder mem.PageOrder) {
	a.table = table
	a.highestOrder = highestOrder
	a.freeLists = make([]list.List, highestOrder+1)
}

// HighestOrder returns the largest order this allocator can satisfy.
func (a *Allocator) HighestOrder() mem.PageOrder { return a.highestOrder }

// Table exposes the descriptor table so that the owning zone can translate
// indices to physical frames. Callers must not resize it.
func (a *Allocator) Table() []Block { return a.table }

// MarkFree seeds an initial free block of the given order at table-relative
// index. It is used once, at boot, to describe the regions of a zone that
// are actually backed by usable memory; ordinary allocation and freeing
// never call it directly.
func (a *Allocator) MarkFree(index int, order mem.PageOrder) {
	block := &a.table[index]
	block.order = order
	block.flags = flagFree
	if order < a.highestOrder {
		block.flags |= flagLowerOrder
	}
	a.freeLists[order].AddTail(&block.link)
}

// Allocate returns a block of exactly 2^order pages, or nil if no free
// block at order..highestOrder is available. On success the returned
// block's Free method reports false.
func (a *Allocator) Allocate(order mem.PageOrder) *Block {
	if int(order) >= len(a.freeLists) {
		return nil
	}

	for candidateOrder := order; int(candidateOrder) < len(a.freeLists); candidateOrder++ {
		elem := a.freeLists[candidateOrder].PullTail()
		if elem == nil {
			continue
		}

		index := a.indexOf(blockFromLink(elem))
		for curOrder := candidateOrder; curOrder > order; curOrder-- {
			lowerOrder := curOrder - 1
			lower := &a.table[index]
			lower.order = lowerOrder
			lower.flags = flagFree | flagLowerOrder
			a.freeLists[lowerOrder].AddTail(&lower.link)

			index += 1 << uint(lowerOrder)
		}

		result := &a.table[index]
		result.order = order
		result.flags = 0
		if order < a.highestOrder {
			result.flags = flagLowerOrder
		}
		return result
	}

	return nil
}

// Free returns block, previously obtained from Allocate, to its free list,
// coalescing with its buddy at each order while the buddy is free and of
// matching order. Freeing a block that is not currently allocated, or was
// never returned by this allocator, is undefined.
func (a *Allocator) Free(block *Block) {
	order := block.order
	index := a.indexOf(block)

	for order < a.highestOrder {
		buddyIndex := index ^ (1 << uint(order))
		buddy := &a.table[buddyIndex]

		if !buddy.Free() || buddy.order != order {
			break
		}

		a.freeLists[order].Remove(&buddy.link)
		buddy.order = 0
		buddy.flags = 0

		if buddyIndex < index {
			index = buddyIndex
		}
		order++
	}

	head := &a.table[index]
	head.order = order
	head.flags = flagFree
	if order < a.highestOrder {
		head.flags |= flagLowerOrder
	}
	a.freeLists[order].AddTail(&head.link)
}

// FreeListLen returns the number of free blocks currently on the free list
// for order. Used by tests and by zone status reporting.
func (a *Allocator) FreeListLen(order mem.PageOrder) int {
	if int(order) >= len(a.freeLists) {
		return 0
	}
	return a.freeLists[order].Count()
}

// IndexOf returns block's position relative to the start of a.table. Used
// by the page frame manager to translate a block back into a physical
// frame number.
func (a *Allocator) IndexOf(block *Block) int {
	return a.indexOf(block)
}

// indexOf returns block's position relative to the start of a.table.
func (a *Allocator) indexOf(block *Block) int {
	base := unsafe.Pointer(&a.table[0])
	return int((uintptr(unsafe.Pointer(block)) - uintptr(base)) / unsafe.Sizeof(Block{}))
}

// blockFromLink recovers the Block that embeds the given free-list link.
func blockFromLink(e *list.Elem) *Block {
	return (*Block)(unsafe.Pointer(uintptr(unsafe.Pointer(e)) - unsafe.Offsetof(Block{}.link)))
}

// Check walks every free list and verifies that each member's recorded
// order matches the list it is on and that its buddy at that order is
// never simultaneously free (which would mean Free failed to coalesce
// it). It is a debug-build consistency assertion, not part of the
// allocation hot path; callers invoke it opportunistically, e.g. after a
// suspicious free, not on every operation.
func (a *Allocator) Check() error {
	for order := mem.PageOrder(0); int(order) < len(a.freeLists); order++ {
		freeList := &a.freeLists[order]
		for e := freeList.Head(); e != nil; e = list.Next(e) {
			block := blockFromLink(e)
			if block.order != order {
				return errMismatchedOrder
			}
			if !block.Free() {
				return errNotMarkedFree
			}

			if order < a.highestOrder {
				index := a.indexOf(block)
				buddyIndex := index ^ (1 << uint(order))
				buddy := &a.table[buddyIndex]
				if buddy.Free() && buddy.order == order {
					return errUncoalescedBuddy
				}
			}
		}
	}
	return nil
}
