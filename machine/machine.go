// Package machine simulates the hardware the kernel boots on: physical memory,
// the MMU, and the boot code that enables paging before jumping to the
// kernel.
package machine

import (
	"encoding/binary"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/memory"
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
)

const hugePageSize = paging.EntryCount * pmm.PageSize

// A Machine is a booted computer, ready to run the kernel.
type Machine struct {
	name        string
	description bootinfo.Description
	storage     *memory.Storage
	mmu         *mmu.Comp
}

// Name returns the name of the machine.
func (m *Machine) Name() string {
	return m.name
}

// Description returns what the machine was built from. It is also the boot
// information handed to the kernel.
func (m *Machine) Description() bootinfo.Description {
	return m.description
}

// BootInfo returns the boot information handed to the kernel.
func (m *Machine) BootInfo() bootinfo.Info {
	return m.description
}

// Storage returns the physical memory.
func (m *Machine) Storage() *memory.Storage {
	return m.storage
}

// MMU returns the memory management unit. It is also the CPU interface to
// the paging registers.
func (m *Machine) MMU() *mmu.Comp {
	return m.mmu
}

// loadBootInfo writes the header of the boot information: its total size as
// a 32-bit word followed by a reserved word.
func (m *Machine) loadBootInfo() error {
	r := m.description.BootInfo
	if r.End-r.Start < 8 {
		return nil
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header, uint32(r.End-r.Start))

	return m.storage.Write(r.Start, header)
}

// setUpPageTables does what the boot code does before entering long mode:
// identity map the first GiB with 2 MiB pages, point the last level 4 entry
// at the level 4 table, and load the level 4 table.
func (m *Machine) setUpPageTables() error {
	t := m.description.Bootstrap
	rw := paging.FlagPresent | paging.FlagWritable

	entries := []struct {
		table uint64
		index uint64
		entry paging.Entry
	}{
		{t.P4, 0, paging.NewEntry(pmm.FrameContainingAddress(t.P3), rw)},
		{t.P4, paging.RecursiveIndex,
			paging.NewEntry(pmm.FrameContainingAddress(t.P4), rw)},
		{t.P3, 0, paging.NewEntry(pmm.FrameContainingAddress(t.P2), rw)},
	}

	for _, addr := range []uint64{t.P4, t.P3, t.P2} {
		if err := m.storage.Zero(addr, pmm.PageSize); err != nil {
			return err
		}
	}

	for _, e := range entries {
		err := m.storage.WriteUint64(e.table+e.index*8, uint64(e.entry))
		if err != nil {
			return err
		}
	}

	for i := uint64(0); i < paging.EntryCount; i++ {
		frame := pmm.FrameContainingAddress(i * hugePageSize)
		entry := paging.NewEntry(frame, rw|paging.FlagHugePage)

		if err := m.storage.WriteUint64(t.P2+i*8, uint64(entry)); err != nil {
			return err
		}
	}

	m.mmu.WriteCR3(t.P4)

	return nil
}
