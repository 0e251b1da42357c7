package paging

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/sim"
)

// A Mapper edits the hierarchy that is reachable through the recursive
// level 4 address.
type Mapper struct {
	*sim.HookableBase

	name string
	p4   *Table
	cpu  CPU
}

func newMapper(name string, mem Memory, cpu CPU) *Mapper {
	return &Mapper{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		p4:           NewTable(RecursiveP4Address, Level4, mem),
		cpu:          cpu,
	}
}

// Name returns the name of the mapper.
func (m *Mapper) Name() string {
	return m.name
}

// P4 returns the level 4 table handle.
func (m *Mapper) P4() *Table {
	return m.p4
}

// Translate returns the physical address vAddr is mapped to.
func (m *Mapper) Translate(vAddr uint64) (uint64, bool) {
	offset := vAddr % pmm.PageSize

	frame, ok := m.TranslatePage(PageContainingAddress(vAddr))
	if !ok {
		return 0, false
	}

	return frame.Address() + offset, true
}

// TranslatePage returns the frame page is mapped to. Huge pages are resolved
// to the 4 KiB frame that backs page.
func (m *Mapper) TranslatePage(page Page) (pmm.Frame, bool) {
	p3, ok := m.p4.NextTable(page.P4Index())
	if !ok {
		return 0, false
	}

	if p2, ok := p3.NextTable(page.P3Index()); ok {
		if p1, ok := p2.NextTable(page.P2Index()); ok {
			if frame, ok := p1.Entry(page.P1Index()).PointedFrame(); ok {
				return frame, true
			}
		}
	}

	return m.translateHugePage(p3, page)
}

func (m *Mapper) translateHugePage(p3 *Table, page Page) (pmm.Frame, bool) {
	p3Entry := p3.Entry(page.P3Index())
	if start, ok := p3Entry.PointedFrame(); ok &&
		p3Entry.Flags().Contains(FlagHugePage) {
		if start%(EntryCount*EntryCount) != 0 {
			log.Panicf("1 GiB page at %s is not aligned", start)
		}

		return start + pmm.Frame(page.P2Index()*EntryCount+page.P1Index()), true
	}

	p2, ok := p3.NextTable(page.P3Index())
	if !ok {
		return 0, false
	}

	p2Entry := p2.Entry(page.P2Index())
	if start, ok := p2Entry.PointedFrame(); ok &&
		p2Entry.Flags().Contains(FlagHugePage) {
		if start%EntryCount != 0 {
			log.Panicf("2 MiB page at %s is not aligned", start)
		}

		return start + pmm.Frame(page.P1Index()), true
	}

	return 0, false
}

func (m *Mapper) nextTableCreate(
	t *Table,
	index uint64,
	alloc pmm.FrameAllocator,
) (*Table, error) {
	created := t.Entry(index).IsUnused()

	next, err := t.NextTableCreate(index, alloc)
	if err != nil {
		return nil, err
	}

	if created && m.NumHooks() > 0 {
		frame, _ := t.Entry(index).PointedFrame()
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosTableCreate,
			Item: TableCreateEvent{
				Level:   next.Level(),
				Frame:   frame,
				Address: next.Address(),
			},
		})
	}

	return next, nil
}

// MapTo maps page to frame, creating missing tables from alloc. It panics if
// page is already mapped.
func (m *Mapper) MapTo(
	page Page,
	frame pmm.Frame,
	flags EntryFlags,
	alloc pmm.FrameAllocator,
) error {
	p3, err := m.nextTableCreate(m.p4, page.P4Index(), alloc)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", page, err)
	}

	p2, err := m.nextTableCreate(p3, page.P3Index(), alloc)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", page, err)
	}

	p1, err := m.nextTableCreate(p2, page.P2Index(), alloc)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", page, err)
	}

	if !p1.Entry(page.P1Index()).IsUnused() {
		log.Panicf("%s is already mapped", page)
	}

	p1.SetEntry(page.P1Index(), NewEntry(frame, flags|FlagPresent))

	if m.NumHooks() > 0 {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosMap,
			Item:   MapEvent{Page: page, Frame: frame, Flags: flags | FlagPresent},
		})
	}

	return nil
}

// Map maps page to a frame drawn from alloc.
func (m *Mapper) Map(
	page Page,
	flags EntryFlags,
	alloc pmm.FrameAllocator,
) error {
	frame, ok := alloc.AllocateFrame()
	if !ok {
		return fmt.Errorf("mapping %s: %w", page, ErrOutOfFrames)
	}

	return m.MapTo(page, frame, flags, alloc)
}

// IdentityMap maps frame to the page with the same address.
func (m *Mapper) IdentityMap(
	frame pmm.Frame,
	flags EntryFlags,
	alloc pmm.FrameAllocator,
) error {
	page := PageContainingAddress(frame.Address())
	return m.MapTo(page, frame, flags, alloc)
}

// IdentityMapRange identity maps the frames from start to end, both
// inclusive.
func (m *Mapper) IdentityMapRange(
	start, end pmm.Frame,
	flags EntryFlags,
	alloc pmm.FrameAllocator,
) error {
	for frame := range pmm.FrameRange(start, end) {
		if err := m.IdentityMap(frame, flags, alloc); err != nil {
			return err
		}
	}

	return nil
}

// Unmap removes the mapping of page and drops its cached translation. The
// frame is not given back to alloc. Unmap panics if page is not mapped or is
// part of a huge page.
func (m *Mapper) Unmap(page Page, _ pmm.FrameAllocator) {
	if _, ok := m.Translate(page.Address()); !ok {
		log.Panicf("%s is not mapped", page)
	}

	p1 := m.level1Table(page)
	entry := p1.Entry(page.P1Index())
	frame, _ := entry.PointedFrame()

	p1.SetEntry(page.P1Index(), 0)
	m.cpu.FlushTLBEntry(page.Address())

	if m.NumHooks() > 0 {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosUnmap,
			Item:   MapEvent{Page: page, Frame: frame, Flags: entry.Flags()},
		})
	}
}

func (m *Mapper) level1Table(page Page) *Table {
	p3, ok := m.p4.NextTable(page.P4Index())
	if ok {
		if p2, ok := p3.NextTable(page.P3Index()); ok {
			if p1, ok := p2.NextTable(page.P2Index()); ok {
				return p1
			}
		}
	}

	log.Panic("mapping code does not support huge pages")

	return nil
}
