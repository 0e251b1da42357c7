package machine

import (
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/paging"
)

// A Mapping is a run of virtual memory mapped to contiguous physical memory
// with the same leaf flags.
type Mapping struct {
	VStart uint64
	PStart uint64
	Size   uint64
	Flags  paging.EntryFlags
}

// VEnd returns the first virtual address after the run.
func (m Mapping) VEnd() uint64 {
	return m.VStart + m.Size
}

// Mappings walks the tables of the active hierarchy in physical memory and
// returns what they map, in virtual address order. The recursive entry is
// skipped.
func (m *Machine) Mappings() ([]Mapping, error) {
	var runs []Mapping

	add := func(vAddr uint64, e paging.Entry, size uint64) {
		frame, _ := e.PointedFrame()
		flags := e.Flags()

		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.VEnd() == vAddr &&
				last.PStart+last.Size == frame.Address() &&
				last.Flags == flags {
				last.Size += size
				return
			}
		}

		runs = append(runs, Mapping{
			VStart: vAddr,
			PStart: frame.Address(),
			Size:   size,
			Flags:  flags,
		})
	}

	err := m.walkTable(m.mmu.ReadCR3()&paging.AddressMask, paging.Level4, 0, add)

	return runs, err
}

func levelSize(level paging.Level) uint64 {
	size := uint64(pmm.PageSize)
	for l := paging.Level1; l < level; l++ {
		size *= paging.EntryCount
	}

	return size
}

func (m *Machine) walkTable(
	table uint64,
	level paging.Level,
	base uint64,
	add func(vAddr uint64, e paging.Entry, size uint64),
) error {
	for i := uint64(0); i < paging.EntryCount; i++ {
		if level == paging.Level4 && i == paging.RecursiveIndex {
			continue
		}

		raw, err := m.storage.ReadUint64(table + i*8)
		if err != nil {
			return err
		}

		e := paging.Entry(raw)
		if !e.Flags().Contains(paging.FlagPresent) {
			continue
		}

		vAddr := signExtend(base + i*levelSize(level))

		next, hasNext := level.Next()
		if !hasNext || e.Flags().Contains(paging.FlagHugePage) {
			add(vAddr, e, levelSize(level))
			continue
		}

		frame, _ := e.PointedFrame()
		if err := m.walkTable(frame.Address(), next, vAddr, add); err != nil {
			return err
		}
	}

	return nil
}

func signExtend(addr uint64) uint64 {
	if addr&(1<<47) != 0 {
		return addr | 0xffff_0000_0000_0000
	}

	return addr
}
