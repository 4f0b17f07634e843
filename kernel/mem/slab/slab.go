// Package slab implements the typed object cache that sits above the
// zoned page allocator: constant-size, optionally constructed objects
// backed by page-sized slabs with metadata embedded at the tail of each
// page and an intrusive free-buffer stack.
package slab

import (
	"unsafe"

	"github.com/SukantPal/Silcos-Kernel/kernel/errors"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/list"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/zone"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/sync"
)

// cacheLineSize is the coloring stride: each new slab's first buffer is
// offset by another multiple of this from the page start, up to whatever
// room is left after fitting buffersPerSlab buffers, to spread buffers
// belonging to different slabs across different cache lines.
const cacheLineSize = mem.Size(64)

// slabHeaderSize is the fixed cost, in bytes, of the Slab metadata placed
// at the tail of every backing page.
var slabHeaderSize = mem.Size(unsafe.Sizeof(Slab{}))

// Constructor initializes a freshly carved buffer. It runs once per
// buffer, at slab construction time, not on every New call.
type Constructor func(obj unsafe.Pointer)

// Destructor tears down a buffer. It runs once per buffer, when the slab
// that owns it is destroyed, not on every Delete call.
type Destructor func(obj unsafe.Pointer)

// ObjectInfo is a per-type cache descriptor: layout, optional
// constructor/destructor, and the three slab lists (partial, full, and at
// most one cached empty) that back allocation and free.
type ObjectInfo struct {
	name           string
	rawSize        mem.Size
	align          mem.Size
	bufferSize     mem.Size
	buffersPerSlab uint32

	ctor Constructor
	dtor Destructor

	partialList list.Ring
	fullList    list.Ring
	emptySlab   *Slab

	lock sync.Spinlock

	manager  *pmm.Manager
	registry *Registry

	nextColor mem.Size
	seq       uint64
}

// Slab is placed at page + page_size - sizeof(Slab), so its header shares
// a TLB entry with the last buffers on the page. freeStack links free
// buffers on this slab via an intrusive singly-linked stack whose nodes
// live at the start of each free buffer's own memory, not in a separate
// allocation.
type Slab struct {
	freeStack list.Stack
	freeCount uint32

	coloringOffset mem.Size
	ringLink       list.Elem

	owner *ObjectInfo
	page  uintptr
	seq   uint64
}

// Name returns the type name this cache was created for.
func (o *ObjectInfo) Name() string { return o.name }

// BufferSize returns the per-object allocation size, after rounding
// raw_size up to align.
func (o *ObjectInfo) BufferSize() mem.Size { return o.bufferSize }

// BuffersPerSlab returns how many objects one backing page holds.
func (o *ObjectInfo) BuffersPerSlab() uint32 { return o.buffersPerSlab }

// slabFromRingLink recovers the Slab that embeds the given ring link.
func slabFromRingLink(e *list.Elem) *Slab {
	return (*Slab)(unsafe.Pointer(uintptr(unsafe.Pointer(e)) - unsafe.Offsetof(Slab{}.ringLink)))
}

// slabOf recovers the Slab header for a buffer address, by masking to the
// buffer's page boundary and adding page_size - sizeof(Slab). Valid only
// for buffers whose raw_size satisfied the page_size/8 constraint checked
// at cache creation; larger objects are rejected by NewCache.
func slabOf(obj unsafe.Pointer) *Slab {
	page := uintptr(obj) &^ uintptr(mem.PageSize-1)
	return (*Slab)(unsafe.Pointer(page + uintptr(mem.PageSize) - uintptr(slabHeaderSize)))
}

// New allocates one object from the cache, invoking no constructor (ctor
// runs once per buffer at slab-construction time). sleep is
// advisory: a caller in interrupt context, or otherwise unable to wait for
// memory, must pass false. This implementation never actually waits, so
// both values currently behave identically; sleep exists so a future
// waiting refill path has a stable call signature to grow into once a
// per-CPU cache layer sits in front of this allocator.
func (o *ObjectInfo) New(sleep bool) unsafe.Pointer {
	guard := sync.AcquireIRQSafe(&o.lock)

	s := o.acquireSlabForAllocLocked()
	if s == nil {
		guard.Release()
		return nil
	}

	elem := s.freeStack.Pop()
	s.freeCount--

	if s.freeCount == 0 {
		o.partialList.Remove(&s.ringLink)
		o.fullList.Insert(&s.ringLink)
	}

	guard.Release()
	return unsafe.Pointer(elem)
}

// acquireSlabForAllocLocked returns a slab with at least one free buffer,
// constructing or promoting one if necessary. Must be called with the
// cache lock held.
func (o *ObjectInfo) acquireSlabForAllocLocked() *Slab {
	if o.partialList.Count() > 0 {
		return slabFromRingLink(o.partialList.Main())
	}

	if o.emptySlab != nil {
		s := o.emptySlab
		o.emptySlab = nil
		o.partialList.Insert(&s.ringLink)
		return s
	}

	s, err := o.constructSlab()
	if err != nil || s == nil {
		return nil
	}
	o.partialList.Insert(&s.ringLink)
	return s
}

// Delete returns obj, previously obtained from New, to its owning slab.
// Destructors run only when a whole slab is torn down, never here.
func (o *ObjectInfo) Delete(obj unsafe.Pointer) {
	guard := sync.AcquireIRQSafe(&o.lock)

	s := slabOf(obj)
	elem := (*list.StackElem)(obj)
	*elem = list.StackElem{}
	s.freeStack.Push(elem)
	s.freeCount++

	switch {
	case s.freeCount == 1:
		// Was full; now has exactly one free buffer.
		o.fullList.Remove(&s.ringLink)
		o.partialList.Insert(&s.ringLink)

	case s.freeCount == o.buffersPerSlab:
		o.partialList.Remove(&s.ringLink)
		s.seq = o.seq
		o.seq++

		if o.emptySlab == nil {
			o.emptySlab = s
		} else {
			older, newer := o.emptySlab, s
			if newer.seq < older.seq {
				older, newer = newer, older
			}
			o.destroySlabLocked(older)
			o.emptySlab = newer
		}
	}

	guard.Release()
}

// Destroy tears this cache down, succeeding only when both the partial
// and full lists are empty. On success any cached
// empty slab is destroyed too and the cache must not be used again.
func (o *ObjectInfo) Destroy() bool {
	guard := sync.AcquireIRQSafe(&o.lock)

	if o.partialList.Count() > 0 || o.fullList.Count() > 0 {
		guard.Release()
		return false
	}

	if o.emptySlab != nil {
		o.destroySlabLocked(o.emptySlab)
		o.emptySlab = nil
	}

	guard.Release()

	if o.registry != nil {
		o.registry.unregister(o)
	}
	return true
}

// constructSlab allocates a fresh backing page from the kernel-object
// zone, zeroes it, places a Slab header at its tail, and carves it into
// buffersPerSlab buffers, invoking ctor on each and pushing it onto the
// slab's free stack.
func (o *ObjectInfo) constructSlab() (*Slab, error) {
	frame, err := o.manager.Allocate(0, zone.KindKernelObject, 0)
	if err != nil {
		return nil, err
	}
	if !frame.Valid() {
		return nil, nil
	}

	page := frame.Address()
	mem.Memset(page, 0, mem.PageSize)

	fence := page + uintptr(mem.PageSize) - uintptr(slabHeaderSize)
	s := (*Slab)(unsafe.Pointer(fence))
	*s = Slab{}
	s.owner = o
	s.page = page

	// The frame descriptor's auxiliary pointer identifies this page as
	// belonging to this cache, for debugging and the destroy path.
	if block, derr := o.manager.FrameDescriptorOf(frame); derr == nil {
		block.SetAux(unsafe.Pointer(o))
	}

	leftover := mem.Size(fence-page) - mem.Size(o.buffersPerSlab)*o.bufferSize
	colors := leftover/cacheLineSize + 1
	coloring := (o.nextColor / cacheLineSize % colors) * cacheLineSize
	o.nextColor += cacheLineSize
	s.coloringOffset = coloring

	pos := page + uintptr(coloring)
	var count uint32
	for count < o.buffersPerSlab && pos+uintptr(o.bufferSize) <= fence {
		if o.ctor != nil {
			o.ctor(unsafe.Pointer(pos))
		}
		elem := (*list.StackElem)(unsafe.Pointer(pos))
		*elem = list.StackElem{}
		s.freeStack.Push(elem)

		pos += uintptr(o.bufferSize)
		count++
	}
	s.freeCount = count

	return s, nil
}

// destroySlabLocked invokes the cache's destructor on every buffer still
// carved out of s (all of them, since s is only ever destroyed while
// fully free) and returns s's backing page to the zone allocator. Must be
// called with the cache lock held.
func (o *ObjectInfo) destroySlabLocked(s *Slab) {
	if o.dtor != nil {
		fence := s.page + uintptr(mem.PageSize) - uintptr(slabHeaderSize)
		pos := s.page + uintptr(s.coloringOffset)
		for i := uint32(0); i < o.buffersPerSlab && pos+uintptr(o.bufferSize) <= fence; i++ {
			o.dtor(unsafe.Pointer(pos))
			pos += uintptr(o.bufferSize)
		}
	}

	frame := pmm.Frame(s.page >> mem.PageShift)
	o.manager.Free(frame)
}

// minBufferSize is the smallest buffer size this package can carve a free
// buffer out of: every free buffer must be large enough to overlay a
// list.StackElem while it sits on the free stack.
var minBufferSize = mem.Size(unsafe.Sizeof(list.StackElem{}))

// roundUp rounds size up to the next multiple of align. align of zero or
// one means no rounding is applied.
func roundUp(size, align mem.Size) mem.Size {
	if align <= 1 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// Registry tracks every live cache created against it, so a diagnostic
// dump can enumerate all caches without a hidden package-level global.
// A boot sequence that wants a process-wide cache registry owns one
// Registry instance and passes it to every NewCacheIn call.
type Registry struct {
	lock   sync.Spinlock
	caches []*ObjectInfo
}

// register records o. Called once by NewCacheIn.
func (r *Registry) register(o *ObjectInfo) {
	guard := sync.AcquireIRQSafe(&r.lock)
	r.caches = append(r.caches, o)
	guard.Release()
}

// unregister removes o. Called once by Destroy, on success, when o was
// created through a registry.
func (r *Registry) unregister(o *ObjectInfo) {
	guard := sync.AcquireIRQSafe(&r.lock)
	for i, c := range r.caches {
		if c == o {
			r.caches = append(r.caches[:i], r.caches[i+1:]...)
			break
		}
	}
	guard.Release()
}

// Caches returns the registry's currently live caches. The slice is a
// snapshot; caches created or destroyed afterward are not reflected.
func (r *Registry) Caches() []*ObjectInfo {
	guard := sync.AcquireIRQSafe(&r.lock)
	caches := make([]*ObjectInfo, len(r.caches))
	copy(caches, r.caches)
	guard.Release()
	return caches
}

// NewCacheIn creates a cache exactly like NewCache, then registers it with
// registry, so a diagnostic dump can later enumerate it via
// registry.Caches(). Destroy unregisters it automatically on success.
func NewCacheIn(registry *Registry, manager *pmm.Manager, name string, rawSize, align mem.Size, ctor Constructor, dtor Destructor) (*ObjectInfo, error) {
	o, err := NewCache(manager, name, rawSize, align, ctor, dtor)
	if err != nil {
		return nil, err
	}

	o.registry = registry
	registry.register(o)
	return o, nil
}

// NewCache creates a cache for fixed-size objects of rawSize bytes,
// aligned to align bytes. ctor and dtor may be nil. Fails if the
// resulting buffer size cannot share a page with the embedded Slab
// header (raw_size must be at most page_size/8).
func NewCache(manager *pmm.Manager, name string, rawSize, align mem.Size, ctor Constructor, dtor Destructor) (*ObjectInfo, error) {
	if rawSize == 0 {
		return nil, errors.ErrInvalidParamValue
	}
	if rawSize > mem.PageSize/8 {
		return nil, errors.ErrObjectTooLarge
	}

	bufferSize := roundUp(rawSize, align)
	if bufferSize < minBufferSize {
		bufferSize = minBufferSize
	}
	if bufferSize > mem.PageSize/8 {
		return nil, errors.ErrObjectTooLarge
	}

	fence := mem.PageSize - slabHeaderSize
	buffersPerSlab := uint32(fence / bufferSize)
	if buffersPerSlab == 0 {
		return nil, errors.ErrObjectTooLarge
	}

	o := &ObjectInfo{
		name:           name,
		rawSize:        rawSize,
		align:          align,
		bufferSize:     bufferSize,
		buffersPerSlab: buffersPerSlab,
		ctor:           ctor,
		dtor:           dtor,
		manager:        manager,
	}
	return o, nil
}
