package paging

import (
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/sim"
)

// An ActivePageTable is the hierarchy the CPU translates with.
type ActivePageTable struct {
	*Mapper
}

// NewActivePageTable creates a handle on the active hierarchy. There must be
// only one per machine, and the active level 4 table must hold the recursive
// entry.
func NewActivePageTable(mem Memory, cpu CPU) *ActivePageTable {
	return &ActivePageTable{
		Mapper: newMapper("ActivePageTable", mem, cpu),
	}
}

// An InactivePageTable is a hierarchy that is built but not in use.
type InactivePageTable struct {
	P4Frame pmm.Frame
}

// NewInactivePageTable turns frame into an empty level 4 table whose last
// entry points at itself.
func NewInactivePageTable(
	frame pmm.Frame,
	active *ActivePageTable,
	temp *TemporaryPage,
) (InactivePageTable, error) {
	table, err := temp.MapTableFrame(frame, active)
	if err != nil {
		return InactivePageTable{}, err
	}

	table.Zero()
	table.SetEntry(RecursiveIndex, NewEntry(frame, FlagPresent|FlagWritable))

	temp.Unmap(active)

	return InactivePageTable{P4Frame: frame}, nil
}

// With runs f with the recursive entry of the active level 4 table pointing
// at table, so that the Mapper passed to f edits table. The original entry is
// restored afterwards, whether f fails or not.
func (a *ActivePageTable) With(
	table InactivePageTable,
	temp *TemporaryPage,
	f func(m *Mapper) error,
) error {
	backup := pmm.FrameContainingAddress(a.cpu.ReadCR3())

	p4, err := temp.MapTableFrame(backup, a)
	if err != nil {
		return err
	}

	a.p4.SetEntry(RecursiveIndex,
		NewEntry(table.P4Frame, FlagPresent|FlagWritable))
	a.cpu.FlushTLB()

	err = f(a.Mapper)

	p4.SetEntry(RecursiveIndex, NewEntry(backup, FlagPresent|FlagWritable))
	a.cpu.FlushTLB()

	temp.Unmap(a)

	return err
}

// Switch makes table the active hierarchy and returns the one it replaces.
func (a *ActivePageTable) Switch(table InactivePageTable) InactivePageTable {
	old := InactivePageTable{
		P4Frame: pmm.FrameContainingAddress(a.cpu.ReadCR3()),
	}

	a.cpu.WriteCR3(table.P4Frame.Address())

	if a.NumHooks() > 0 {
		a.InvokeHook(sim.HookCtx{
			Domain: a.Mapper,
			Pos:    HookPosSwitch,
			Item:   SwitchEvent{Old: old.P4Frame, New: table.P4Frame},
		})
	}

	return old
}
