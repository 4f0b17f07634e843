package zone

import (
	"testing"

	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
)

func newTestZone(pages int, highestOrder int, reserved uint32) *Zone {
	var z Zone
	table := make([]buddy.Block, pages)
	z.Configure(KindKernelData, table, orderOf(highestOrder), reserved)
	return &z
}

func orderOf(o int) (order mem.PageOrder) {
	return mem.PageOrder(o)
}

func TestStatusReserveWatermarks(t *testing.T) {
	// Zone of 100 pages, reserved = 16, currently free = 20: 80 pages are
	// already allocated.
	z := newTestZone(100, 6, 16)
	z.memoryAllocated = 80

	if got := z.status(17); got != ReserveOverlap {
		t.Fatalf("expected ReserveOverlap (available=4, atomic band=14); got %v", got)
	}

	if got := z.status(4); got != Allocable {
		t.Fatalf("expected Allocable for a request within the non-reserved 4 pages; got %v", got)
	}

	if got := z.status(21); got != LowOnMemory {
		t.Fatalf("expected LowOnMemory for a request exceeding total free pages; got %v", got)
	}
}

func TestStatusClampsWhenReservedExceedsFree(t *testing.T) {
	// Zone of 100 pages, reserved = 11, currently free = 10: reserved has
	// eaten into the entire remaining pool, so available must clamp to 0
	// instead of underflowing.
	z := newTestZone(100, 6, 11)
	z.memoryAllocated = 90

	if got := z.status(5); got != ReserveOverlap {
		t.Fatalf("expected ReserveOverlap (available=0, atomic band=9); got %v", got)
	}

	if got := z.status(10); got != BarrierOverlap {
		t.Fatalf("expected BarrierOverlap for a request beyond the atomic band; got %v", got)
	}

	if got := z.status(11); got != LowOnMemory {
		t.Fatalf("expected LowOnMemory for a request exceeding total free pages; got %v", got)
	}
}

func TestActionTable(t *testing.T) {
	cases := []struct {
		state State
		flags Flag
		want  Action
	}{
		{Allocable, 0, ActionAllocate},
		{ReserveOverlap, 0, ActionGotoNext},
		{ReserveOverlap, Atomic, ActionAllocate},
		{ReserveOverlap, NoFailure, ActionAllocate},
		{ReserveOverlap, ZoneRequired, ActionRetFail},
		{BarrierOverlap, Atomic, ActionGotoNext},
		{BarrierOverlap, NoFailure, ActionAllocate},
		{BarrierOverlap, ZoneRequired, ActionRetFail},
		{LowOnMemory, NoFailure, ActionGotoNext},
		{LowOnMemory, ZoneRequired, ActionRetFail},
	}

	for _, c := range cases {
		if got := action(c.state, c.flags); got != c.want {
			t.Errorf("action(%v, %v) = %v; want %v", c.state, c.flags, got, c.want)
		}
	}
}
