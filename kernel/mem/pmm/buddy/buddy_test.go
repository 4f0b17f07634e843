package buddy

import (
	"testing"

	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
)

func TestAllocateSplitsDownToRequestedOrder(t *testing.T) {
	var a Allocator
	table := make([]Block, 16)
	a.Configure(table, 4)
	a.MarkFree(0, 4)

	block := a.Allocate(0)
	if block == nil {
		t.Fatal("expected a block")
	}
	if block.Order() != 0 {
		t.Fatalf("expected order 0; got %d", block.Order())
	}
	if block.Free() {
		t.Fatal("expected allocated block to report Free() == false")
	}

	// Splitting order 4 down to order 0 leaves exactly one free block at
	// each intermediate order (1, 2, 3) plus the order-4 list now empty.
	for order := mem.PageOrder(1); order <= 3; order++ {
		if got := a.FreeListLen(order); got != 1 {
			t.Errorf("order %d: expected 1 free block; got %d", order, got)
		}
	}
	if got := a.FreeListLen(4); got != 0 {
		t.Errorf("order 4: expected 0 free blocks; got %d", got)
	}
}

func TestFreeCoalescesBackToOriginalBlock(t *testing.T) {
	var a Allocator
	table := make([]Block, 16)
	a.Configure(table, 4)
	a.MarkFree(0, 4)

	block := a.Allocate(0)
	a.Free(block)

	if got := a.FreeListLen(4); got != 1 {
		t.Fatalf("expected fully coalesced order-4 block; got %d free at order 4", got)
	}
	for order := mem.PageOrder(0); order <= 3; order++ {
		if got := a.FreeListLen(order); got != 0 {
			t.Errorf("order %d: expected 0 free blocks after full coalesce; got %d", order, got)
		}
	}

	head := &table[0]
	if !head.Free() || head.Order() != 4 {
		t.Fatalf("expected table[0] to be a free order-4 block; got free=%v order=%d", head.Free(), head.Order())
	}
}

func TestAllocateExhaustsSmallZone(t *testing.T) {
	var a Allocator
	table := make([]Block, 2)
	a.Configure(table, 1)
	a.MarkFree(0, 1)

	first := a.Allocate(0)
	second := a.Allocate(0)
	if first == nil || second == nil {
		t.Fatal("expected both order-0 allocations to succeed")
	}
	if first == second {
		t.Fatal("expected two distinct blocks")
	}

	if got := a.Allocate(0); got != nil {
		t.Fatal("expected allocator to be exhausted")
	}

	a.Free(first)
	a.Free(second)

	if got := a.FreeListLen(1); got != 1 {
		t.Fatalf("expected the two order-0 buddies to coalesce into one order-1 block; got %d", got)
	}
}

func TestFreeDoesNotCoalesceWhileBuddyIsAllocated(t *testing.T) {
	var a Allocator
	table := make([]Block, 2)
	a.Configure(table, 1)
	// Seed both order-0 halves directly, rather than splitting an order-1
	// block, so the two leaves are buddies with no other free blocks
	// around to confuse the assertions below.
	a.MarkFree(0, 0)
	a.MarkFree(1, 0)

	leaf := a.Allocate(0)
	other := a.Allocate(0)
	if leaf == nil || other == nil {
		t.Fatal("expected both order-0 allocations to succeed")
	}

	a.Free(leaf)
	if got := a.FreeListLen(0); got != 1 {
		t.Fatalf("expected exactly one free order-0 block; got %d", got)
	}
	if got := a.FreeListLen(1); got != 0 {
		t.Fatalf("expected no order-1 coalescing while buddy is allocated; got %d", got)
	}
}

func TestCheckPassesOnConsistentState(t *testing.T) {
	var a Allocator
	table := make([]Block, 16)
	a.Configure(table, 4)
	a.MarkFree(0, 4)

	block := a.Allocate(0)
	if err := a.Check(); err != nil {
		t.Fatalf("unexpected error from Check on a consistent allocator: %v", err)
	}

	a.Free(block)
	if err := a.Check(); err != nil {
		t.Fatalf("unexpected error from Check after Free: %v", err)
	}
}

func TestCheckDetectsUncoalescedBuddies(t *testing.T) {
	var a Allocator
	table := make([]Block, 2)
	a.Configure(table, 1)

	// Directly seed both order-0 halves as free without ever allocating
	// them; a correct allocator state never leaves two buddies free at
	// the same order; Check must flag it.
	a.MarkFree(0, 0)
	a.MarkFree(1, 0)

	if err := a.Check(); err != errUncoalescedBuddy {
		t.Fatalf("expected errUncoalescedBuddy; got %v", err)
	}
}
