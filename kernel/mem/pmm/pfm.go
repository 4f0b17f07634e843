package pmm

import (
	"github.com/SukantPal/Silcos-Kernel/kernel/errors"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/buddy"
	"github.com/SukantPal/Silcos-Kernel/kernel/mem/pmm/zone"
)

// Manager is the thin facade the rest of the kernel sees: pages_allocate,
// pages_free and frame_descriptor_of, layered directly on a
// zone.Allocator. It owns no state of its own beyond that allocator, so
// tests and boot code can each stand up an independent Manager over
// synthetic zones.
type Manager struct {
	zones zone.Allocator
}

// RegisterZone adds z to the manager's zone table under the given
// preference class, returning z's zone ID.
func (m *Manager) RegisterZone(z *zone.Zone, preferenceIndex int) uint16 {
	return m.zones.Register(z, preferenceIndex)
}

// Zones exposes the manager's registered zones, in registration order.
func (m *Manager) Zones() []*zone.Zone { return m.zones.Zones() }

// Report returns a point-in-time snapshot of every registered zone's
// counters, for boot-time diagnostic logging.
func (m *Manager) Report() []zone.Report { return m.zones.Report() }

// Allocate implements pages_allocate(order, zone_kind, flags): it resolves
// kind to the first registered zone of that kind, used as both the
// preferred zone and, since ZONE_REQUIRED means "this exact zone", the
// zone descent's starting point. It then asks the zone allocator for a
// block and translates the resulting descriptor into a physical frame.
func (m *Manager) Allocate(order mem.PageOrder, kind zone.Kind, flags zone.Flag) (Frame, error) {
	if order > mem.MaxPageOrder {
		return InvalidFrame, errors.ErrOrderTooLarge
	}

	preferred := m.zones.ZoneByKind(kind)
	if preferred == nil {
		return InvalidFrame, errors.ErrInvalidParamValue
	}

	block, z, err := m.zones.AllocateBlock(order, flags, 0, preferred)
	if err != nil {
		return InvalidFrame, err
	}
	if block == nil {
		return InvalidFrame, nil
	}

	index := z.IndexOf(block)
	return Frame(z.BaseFrame()) + Frame(index), nil
}

// Free implements pages_free(phys): it recovers the owning zone and block
// descriptor for phys and returns it to the zone allocator.
func (m *Manager) Free(phys Frame) error {
	block, _, err := m.blockAt(phys)
	if err != nil {
		return err
	}

	m.zones.FreeBlock(block)
	return nil
}

// FrameDescriptorOf implements frame_descriptor_of(phys): it returns the
// BuddyBlock descriptor backing phys without freeing it, for diagnostic
// and slab-auxiliary-pointer use.
func (m *Manager) FrameDescriptorOf(phys Frame) (*buddy.Block, error) {
	block, _, err := m.blockAt(phys)
	return block, err
}

// blockAt finds the zone owning phys and returns its block descriptor.
func (m *Manager) blockAt(phys Frame) (*buddy.Block, *zone.Zone, error) {
	for _, z := range m.zones.Zones() {
		base := Frame(z.BaseFrame())
		size := Frame(z.MemorySize())
		if phys < base || phys >= base+size {
			continue
		}

		index := int(phys - base)
		return z.BlockAt(index), z, nil
	}

	return nil, nil, errors.ErrInvalidParamValue
}
