package paging

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/kmem/mem/pmm"
)

// RecursiveP4Address is the virtual address of the active level 4 table. It
// is reachable because the last entry of every level 4 table points at the
// table itself.
const RecursiveP4Address = uint64(0xffff_ffff_ffff_f000)

// RecursiveIndex is the level 4 entry that points back at its own table.
const RecursiveIndex = EntryCount - 1

// ErrOutOfFrames is returned when a frame allocator has no frame left.
var ErrOutOfFrames = errors.New("out of physical frames")

// A Table is a handle on one table of the hierarchy, reached through a
// virtual address. Reads and writes go straight to memory.
type Table struct {
	address uint64
	level   Level
	mem     Memory
}

// NewTable creates a handle on the table mapped at vAddr.
func NewTable(vAddr uint64, level Level, mem Memory) *Table {
	if vAddr%pmm.PageSize != 0 {
		log.Panicf("table address %#x is not page aligned", vAddr)
	}

	return &Table{address: vAddr, level: level, mem: mem}
}

// Address returns the virtual address the table is reached through.
func (t *Table) Address() uint64 {
	return t.address
}

// Level returns the level of the table.
func (t *Table) Level() Level {
	return t.level
}

func (t *Table) entryAddress(index uint64) uint64 {
	if index >= EntryCount {
		log.Panicf("table index %d out of range", index)
	}

	return t.address + index*8
}

// Entry reads entry index.
func (t *Table) Entry(index uint64) Entry {
	addr := t.entryAddress(index)

	v, err := t.mem.ReadUint64(addr)
	if err != nil {
		log.Panicf("reading %s entry %d at %#x: %v", t.level, index, addr, err)
	}

	return Entry(v)
}

// SetEntry writes entry index.
func (t *Table) SetEntry(index uint64, e Entry) {
	addr := t.entryAddress(index)

	err := t.mem.WriteUint64(addr, uint64(e))
	if err != nil {
		log.Panicf("writing %s entry %d at %#x: %v", t.level, index, addr, err)
	}
}

// Zero marks all entries unused.
func (t *Table) Zero() {
	for i := uint64(0); i < EntryCount; i++ {
		t.SetEntry(i, 0)
	}
}

func (t *Table) childLevel() Level {
	next, ok := t.level.Next()
	if !ok {
		log.Panicf("%s tables have no next level", t.level)
	}

	return next
}

func (t *Table) nextTableAddress(index uint64) (uint64, bool) {
	flags := t.Entry(index).Flags()
	if !flags.Contains(FlagPresent) || flags.Contains(FlagHugePage) {
		return 0, false
	}

	return signExtend(t.address<<9 | index<<12), true
}

// NextTable returns the table entry index points at. It reports false if the
// entry is not present or maps a huge page. It panics on level 1 tables.
func (t *Table) NextTable(index uint64) (*Table, bool) {
	level := t.childLevel()

	addr, ok := t.nextTableAddress(index)
	if !ok {
		return nil, false
	}

	return &Table{address: addr, level: level, mem: t.mem}, true
}

// NextTableCreate returns the table entry index points at, creating an empty
// one from alloc if the entry is unused. It panics if the entry maps a huge
// page.
func (t *Table) NextTableCreate(
	index uint64,
	alloc pmm.FrameAllocator,
) (*Table, error) {
	t.childLevel()

	if next, ok := t.NextTable(index); ok {
		return next, nil
	}

	if t.Entry(index).Flags().Contains(FlagHugePage) {
		log.Panic("mapping code does not support huge pages")
	}

	frame, ok := alloc.AllocateFrame()
	if !ok {
		return nil, fmt.Errorf("creating %s table: %w",
			t.level-1, ErrOutOfFrames)
	}

	t.SetEntry(index, NewEntry(frame, FlagPresent|FlagWritable))

	next, _ := t.NextTable(index)
	next.Zero()

	return next, nil
}
