package zone

import (
	"unsafe"

	"github.com/SukantPal/Silcos-Kernel/kernel/errors"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/list"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/sync"
)

// Allocator selects a zone per request, honoring preference ordering and
// the watermark policy in status/action, then delegates the actual page
// split or coalesce to that zone's buddy allocator. There is no allocator-
// wide lock: contention is bounded by the number of zones, not global.
type Allocator struct {
	zones []*Zone

	// preferences[p] is the ring of zones registered at preference p.
	// Index 0 is the least preferred class; Register appends new
	// preference classes on demand.
	preferences []list.Ring
}

// Register adds z to the allocator's zone table at preference class
// preferenceIndex, returning the zone ID that FreeBlock will later see on
// blocks allocated from z. Preference classes are created on demand: it is
// not necessary to register every zone at a given class before the next.
func (a *Allocator) Register(z *Zone, preferenceIndex int) uint16 {
	id := uint16(len(a.zones))
	a.zones = append(a.zones, z)

	for len(a.preferences) <= preferenceIndex {
		a.preferences = append(a.preferences, list.Ring{})
	}

	z.preferenceIndex = preferenceIndex
	z.bindID(id)
	a.preferences[preferenceIndex].Insert(&z.ringLink)

	return id
}

// zoneFromRingLink recovers the Zone that embeds the given ring link.
func zoneFromRingLink(e *list.Elem) *Zone {
	return (*Zone)(unsafe.Pointer(uintptr(unsafe.Pointer(e)) - unsafe.Offsetof(Zone{}.ringLink)))
}

// GetZone implements the preference-descent search described for
// get_zone: starting at preferred's own preference class, it walks that
// class's ring once; if no member zone can serve the request it descends
// to the next lower preference class (down to basePref) and tries again
// from the head of that class's ring.
//
// On success it returns the winning zone together with the IRQGuard
// acquired for its lock, which the caller must release (AllocateBlock does
// this after calling the zone's buddy allocator). On failure it returns a
// nil zone, or a nil zone plus an error if the caller's ZoneRequired flag
// forced an early stop.
func (a *Allocator) GetZone(requestPages uint32, basePref int, flags Flag, preferred *Zone) (*Zone, sync.IRQGuard, error) {
	p := preferred.preferenceIndex

	for p >= basePref {
		ring := &a.preferences[p]
		if ring.Count() > 0 {
			startElem := ring.Main()
			if preferred.preferenceIndex == p {
				startElem = &preferred.ringLink
			}

			cur := startElem
			for i := 0; i < ring.Count(); i++ {
				z := zoneFromRingLink(cur)

				guard := sync.AcquireIRQSafe(&z.lock)
				state := z.status(requestPages)
				act := action(state, flags)

				switch act {
				case ActionAllocate:
					return z, guard, nil
				case ActionRetFail:
					guard.Release()
					return nil, sync.IRQGuard{}, errors.ErrZoneRequired
				default: // ActionGotoNext
					guard.Release()
				}

				cur = list.RingNext(cur)
			}
		}

		p--
	}

	return nil, sync.IRQGuard{}, nil
}

// AllocateBlock is the top-level entry point: it finds a suitable zone via
// GetZone, performs the buddy allocation while holding that zone's lock,
// updates the zone's allocated-page counter, and releases the lock exactly
// once before returning.
func (a *Allocator) AllocateBlock(order mem.PageOrder, flags Flag, basePref int, preferred *Zone) (*buddy.Block, *Zone, error) {
	requestPages := uint32(1) << uint(order)

	z, guard, err := a.GetZone(requestPages, basePref, flags, preferred)
	if err != nil {
		return nil, nil, err
	}
	if z == nil {
		return nil, nil, nil
	}

	block := z.buddy.Allocate(order)
	if block != nil {
		z.memoryAllocated += requestPages
	}
	guard.Release()

	if block == nil {
		return nil, nil, nil
	}
	return block, z, nil
}

// FreeBlock returns block to its owning zone, recovered from the block's
// zone index with no search. It decrements the zone's allocated-page
// counter and hands the block back to the zone's buddy allocator, all
// under the zone's lock.
func (a *Allocator) FreeBlock(block *buddy.Block) {
	z := a.zones[block.ZoneIndex()]
	requestPages := uint32(1) << uint(block.Order())

	guard := sync.AcquireIRQSafe(&z.lock)
	z.buddy.Free(block)
	z.memoryAllocated -= requestPages
	guard.Release()
}

// ZoneByKind returns the first registered zone of the given kind, or nil.
// It is a convenience used by the page frame manager to translate a
// caller-facing zone kind into the preferred zone for GetZone.
func (a *Allocator) ZoneByKind(kind Kind) *Zone {
	for _, z := range a.zones {
		if z.kind == kind {
			return z
		}
	}
	return nil
}

// Zones returns the allocator's registered zones in registration order.
func (a *Allocator) Zones() []*Zone { return a.zones }

// Report returns a point-in-time snapshot of every registered zone's
// counters, in registration order. Used for boot-time diagnostic logging
// only; never consulted by the allocation path itself.
func (a *Allocator) Report() []Report {
	reports := make([]Report, len(a.zones))
	for i, z := range a.zones {
		reports[i] = z.Report()
	}
	return reports
}
