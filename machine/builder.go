package machine

import (
	"fmt"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/memory"
	"github.com/sarchlab/kmem/mem/vm/mmu"
)

// A Builder can build machines.
type Builder struct {
	description bootinfo.Description
	tlbSize     int
}

// MakeBuilder creates a builder of the default machine.
func MakeBuilder() Builder {
	return Builder{
		description: bootinfo.DefaultDescription(),
	}
}

// WithDescription sets the machine description.
func (b Builder) WithDescription(d bootinfo.Description) Builder {
	b.description = d
	return b
}

// WithTLBSize overrides the TLB size of the description.
func (b Builder) WithTLBSize(n int) Builder {
	b.tlbSize = n
	return b
}

// Build creates the machine and runs its boot code, which leaves the CPU in
// long mode with the bootstrap tables active.
func (b Builder) Build(name string) (*Machine, error) {
	d := b.description
	if b.tlbSize > 0 {
		d.TLBSize = b.tlbSize
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("machine %s: %w", name, err)
	}

	m := &Machine{
		name:        name,
		description: d,
		storage:     memory.NewStorage(d.MemorySize),
	}

	m.mmu = mmu.MakeBuilder().
		WithStorage(m.storage).
		WithTLBSize(d.TLBSize).
		Build(name + ".MMU")

	if err := m.loadBootInfo(); err != nil {
		return nil, fmt.Errorf("machine %s: %w", name, err)
	}

	if err := m.setUpPageTables(); err != nil {
		return nil, fmt.Errorf("machine %s: %w", name, err)
	}

	return m, nil
}
