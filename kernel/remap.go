package kernel

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/vga"
)

// TemporaryPageAddress is an address nothing else is mapped at.
const TemporaryPageAddress = uint64(0xcafe_babe)

// RemapState tells how far RemapKernel went.
type RemapState int

// States of the remap, in the order they are reached.
const (
	NoNewTable RemapState = iota
	NewTableBuilt
	NewTablePopulated
	NewTableActive
	OldTableReclaimed
)

func (s RemapState) String() string {
	switch s {
	case NoNewTable:
		return "NoNewTable"
	case NewTableBuilt:
		return "NewTableBuilt"
	case NewTablePopulated:
		return "NewTablePopulated"
	case NewTableActive:
		return "NewTableActive"
	case OldTableReclaimed:
		return "OldTableReclaimed"
	default:
		return fmt.Sprintf("RemapState(%d)", int(s))
	}
}

// RemapKernel builds page tables that map the kernel sections with their own
// permissions, the text buffer, and the boot information, and switches to
// them. The page that held the old level 4 table is left unmapped to catch
// stack overflows. It returns the old page tables.
func RemapKernel(ctx *Context) (paging.InactivePageTable, error) {
	temp := paging.NewTemporaryPage(
		paging.PageContainingAddress(TemporaryPageAddress), ctx.Allocator)
	ctx.Logf(vga.LevelDebug, "temporary page uses frames %v",
		temp.Allocator().Frames())

	frame, ok := ctx.Allocator.AllocateFrame()
	if !ok {
		return paging.InactivePageTable{},
			fmt.Errorf("allocating level 4 table: %w", paging.ErrOutOfFrames)
	}

	newTable, err := paging.NewInactivePageTable(frame, ctx.Active, temp)
	if err != nil {
		return paging.InactivePageTable{}, err
	}

	ctx.State = NewTableBuilt

	err = ctx.Active.With(newTable, temp, func(m *paging.Mapper) error {
		return populate(ctx, m)
	})
	if err != nil {
		return paging.InactivePageTable{}, err
	}

	ctx.State = NewTablePopulated

	old := ctx.Active.Switch(newTable)
	ctx.State = NewTableActive
	ctx.Logf(vga.LevelInfo, "switched to new page table at %s", newTable.P4Frame)

	guard := paging.PageContainingAddress(old.P4Frame.Address())
	ctx.Active.Unmap(guard, ctx.Allocator)
	ctx.State = OldTableReclaimed
	ctx.Logf(vga.LevelInfo, "guard page at %#x", guard.Address())

	return old, nil
}

func populate(ctx *Context, m *paging.Mapper) error {
	for _, section := range ctx.Sections {
		if !section.IsAllocated() {
			continue
		}

		if section.StartAddress()%pmm.PageSize != 0 {
			log.Panic("sections need to be page aligned")
		}

		if section.Size == 0 {
			continue
		}

		ctx.Logf(vga.LevelDebug, "mapping section %s", section)

		err := m.IdentityMapRange(
			pmm.FrameContainingAddress(section.StartAddress()),
			pmm.FrameContainingAddress(section.EndAddress()-1),
			paging.FlagsForSection(section),
			ctx.Allocator,
		)
		if err != nil {
			return fmt.Errorf("mapping section %s: %w", section.Name, err)
		}
	}

	err := m.IdentityMap(pmm.FrameContainingAddress(vga.BufferAddress),
		paging.FlagWritable, ctx.Allocator)
	if err != nil {
		return fmt.Errorf("mapping text buffer: %w", err)
	}

	return identityMapBootInfo(ctx.BootInfo, m, ctx.Allocator)
}

func identityMapBootInfo(
	info bootinfo.Info,
	m *paging.Mapper,
	alloc pmm.FrameAllocator,
) error {
	if info.EndAddress() <= info.StartAddress() {
		return nil
	}

	err := m.IdentityMapRange(
		pmm.FrameContainingAddress(info.StartAddress()),
		pmm.FrameContainingAddress(info.EndAddress()-1),
		paging.FlagPresent,
		alloc,
	)
	if err != nil {
		return fmt.Errorf("mapping boot information: %w", err)
	}

	return nil
}
