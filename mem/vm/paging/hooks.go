package paging

import (
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/sim"
)

var (
	// HookPosMap marks a page being mapped. The hook item is a MapEvent.
	HookPosMap = &sim.HookPos{Name: "Map"}

	// HookPosUnmap marks a page being unmapped. The hook item is a MapEvent.
	HookPosUnmap = &sim.HookPos{Name: "Unmap"}

	// HookPosTableCreate marks a new table being linked into the hierarchy.
	// The hook item is a TableCreateEvent.
	HookPosTableCreate = &sim.HookPos{Name: "TableCreate"}

	// HookPosSwitch marks a switch of the active level 4 table. The hook item
	// is a SwitchEvent.
	HookPosSwitch = &sim.HookPos{Name: "Switch"}
)

// A MapEvent describes a change of a level 1 entry.
type MapEvent struct {
	Page  Page
	Frame pmm.Frame
	Flags EntryFlags
}

// A TableCreateEvent describes a new table.
type TableCreateEvent struct {
	Level Level
	Frame pmm.Frame

	// Address is the virtual address of the new table at the time it was
	// created.
	Address uint64
}

// A SwitchEvent describes a change of the translation root.
type SwitchEvent struct {
	Old pmm.Frame
	New pmm.Frame
}
