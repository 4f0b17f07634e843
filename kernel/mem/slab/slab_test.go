package slab

import (
	"testing"
	"unsafe"

	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/zone"
)

// newTestManager stands up a pmm.Manager over a single freshly-configured
// kernel-object zone, large enough to back several slabs.
func newTestManager(t *testing.T, pages int) *pmm.Manager {
	t.Helper()

	var m pmm.Manager
	var z zone.Zone

	highestOrder := mem.PageOrder(0)
	for (1 << uint(highestOrder+1)) <= pages {
		highestOrder++
	}

	table := make([]buddy.Block, pages)
	z.Configure(zone.KindKernelObject, table, highestOrder, 0)
	z.MarkFree(0, highestOrder)

	m.RegisterZone(&z, 0)
	return &m
}

type widget struct {
	tag   uint64
	built bool
}

func TestNewCacheRejectsOversizedObjects(t *testing.T) {
	m := newTestManager(t, 4)

	if _, err := NewCache(m, "oversized", mem.PageSize, 0, nil, nil); err == nil {
		t.Fatal("expected an error for an object larger than page_size/8")
	}
}

func TestNewAndDeleteRoundTrip(t *testing.T) {
	m := newTestManager(t, 4)

	built := 0
	torn := 0
	ctor := func(obj unsafe.Pointer) {
		(*widget)(obj).built = true
		built++
	}
	dtor := func(obj unsafe.Pointer) {
		torn++
	}

	cache, err := NewCache(m, "widget", mem.Size(unsafe.Sizeof(widget{})), 8, ctor, dtor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := cache.New(false)
	if obj == nil {
		t.Fatal("expected a non-nil buffer")
	}
	w := (*widget)(obj)
	if !w.built {
		t.Fatal("expected constructor to have run before New returned")
	}
	if uint32(built) != cache.BuffersPerSlab() {
		t.Fatalf("expected ctor to run once per buffer at slab construction; got %d calls for %d buffers", built, cache.BuffersPerSlab())
	}

	cache.Delete(obj)
	if torn != 0 {
		t.Fatal("expected destructor not to run on Delete, only on slab teardown")
	}
}

func TestCacheChurnMatchesSlabLifecycle(t *testing.T) {
	m := newTestManager(t, 8)

	cache, err := NewCache(m, "widget", mem.Size(unsafe.Sizeof(widget{})), 8, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	perSlab := cache.BuffersPerSlab()
	if perSlab < 2 {
		t.Fatalf("test assumes at least 2 buffers per slab; got %d", perSlab)
	}

	total := int(perSlab) + int(perSlab)/2
	if total == int(perSlab) {
		total++
	}

	objs := make([]unsafe.Pointer, 0, total)
	for i := 0; i < total; i++ {
		obj := cache.New(false)
		if obj == nil {
			t.Fatalf("allocation %d unexpectedly failed", i)
		}
		objs = append(objs, obj)
	}

	if cache.fullList.Count() != 1 {
		t.Fatalf("expected exactly one full slab; got %d", cache.fullList.Count())
	}
	if cache.partialList.Count() != 1 {
		t.Fatalf("expected exactly one partial slab; got %d", cache.partialList.Count())
	}

	for i := len(objs) - 1; i >= 0; i-- {
		cache.Delete(objs[i])
	}

	if cache.partialList.Count() != 0 || cache.fullList.Count() != 0 {
		t.Fatalf("expected all slabs to have returned to the cached-empty state; partial=%d full=%d",
			cache.partialList.Count(), cache.fullList.Count())
	}
	if cache.emptySlab == nil {
		t.Fatal("expected one cached empty slab to survive full churn")
	}
}

func TestRegistryTracksLiveCaches(t *testing.T) {
	m := newTestManager(t, 4)
	var registry Registry

	cache, err := NewCacheIn(&registry, m, "widget", mem.Size(unsafe.Sizeof(widget{})), 8, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	caches := registry.Caches()
	if len(caches) != 1 || caches[0] != cache {
		t.Fatalf("expected registry to contain the new cache; got %v", caches)
	}

	if !cache.Destroy() {
		t.Fatal("expected Destroy to succeed on an empty cache")
	}

	if got := registry.Caches(); len(got) != 0 {
		t.Fatalf("expected registry to be empty after Destroy; got %v", got)
	}
}

func TestDestroyFailsWhileObjectsAreLive(t *testing.T) {
	m := newTestManager(t, 4)

	cache, err := NewCache(m, "widget", mem.Size(unsafe.Sizeof(widget{})), 8, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := cache.New(false)
	if cache.Destroy() {
		t.Fatal("expected Destroy to fail while an object is still allocated")
	}

	cache.Delete(obj)
	if !cache.Destroy() {
		t.Fatal("expected Destroy to succeed once all objects are freed")
	}
}
