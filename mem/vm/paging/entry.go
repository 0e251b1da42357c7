package paging

import (
	"fmt"
	"log"
	"strings"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/pmm"
)

// EntryFlags is the flag part of a page table entry.
type EntryFlags uint64

// Page table entry flags. Bit positions follow the x86_64 paging format.
const (
	FlagPresent        EntryFlags = 1 << 0
	FlagWritable       EntryFlags = 1 << 1
	FlagUserAccessible EntryFlags = 1 << 2
	FlagWriteThrough   EntryFlags = 1 << 3
	FlagNoCache        EntryFlags = 1 << 4
	FlagAccessed       EntryFlags = 1 << 5
	FlagDirty          EntryFlags = 1 << 6
	FlagHugePage       EntryFlags = 1 << 7
	FlagGlobal         EntryFlags = 1 << 8
	FlagNoExecute      EntryFlags = 1 << 63
)

// AddressMask selects the physical address bits 12 to 51 of an entry.
const AddressMask = uint64(0x000f_ffff_ffff_f000)

var flagNames = []struct {
	flag EntryFlags
	name string
}{
	{FlagPresent, "P"},
	{FlagWritable, "W"},
	{FlagUserAccessible, "U"},
	{FlagWriteThrough, "WT"},
	{FlagNoCache, "NC"},
	{FlagAccessed, "A"},
	{FlagDirty, "D"},
	{FlagHugePage, "H"},
	{FlagGlobal, "G"},
	{FlagNoExecute, "NX"},
}

// Contains tells if all the flags in other are set.
func (f EntryFlags) Contains(other EntryFlags) bool {
	return f&other == other
}

func (f EntryFlags) String() string {
	names := make([]string, 0, len(flagNames))

	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}

	if len(names) == 0 {
		return "-"
	}

	return strings.Join(names, "|")
}

// FlagsForSection derives the mapping flags of a kernel ELF section.
func FlagsForSection(section bootinfo.ElfSection) EntryFlags {
	var flags EntryFlags

	if section.IsAllocated() {
		flags |= FlagPresent
	}

	if section.IsWritable() {
		flags |= FlagWritable
	}

	if !section.IsExecutable() {
		flags |= FlagNoExecute
	}

	return flags
}

// An Entry is a 64-bit page table entry.
type Entry uint64

// NewEntry returns a present entry pointing at frame.
func NewEntry(frame pmm.Frame, flags EntryFlags) Entry {
	var e Entry
	e.Set(frame, flags)

	return e
}

// IsUnused tells if all bits of the entry are zero.
func (e Entry) IsUnused() bool {
	return e == 0
}

// SetUnused clears the entry.
func (e *Entry) SetUnused() {
	*e = 0
}

// Flags returns the flag bits of the entry.
func (e Entry) Flags() EntryFlags {
	return EntryFlags(uint64(e) &^ AddressMask)
}

// PointedFrame returns the frame the entry points at. The bool is false if
// the entry is not present.
func (e Entry) PointedFrame() (pmm.Frame, bool) {
	if !e.Flags().Contains(FlagPresent) {
		return 0, false
	}

	return pmm.FrameContainingAddress(uint64(e) & AddressMask), true
}

// Set points the entry at frame. The present flag is always set. It panics if
// the frame address does not fit in the address bits.
func (e *Entry) Set(frame pmm.Frame, flags EntryFlags) {
	addr := frame.Address()
	if addr&^AddressMask != 0 {
		log.Panicf("frame address %#x is outside the physical address mask", addr)
	}

	*e = Entry(addr | uint64(flags&^EntryFlags(AddressMask)|FlagPresent))
}

func (e Entry) String() string {
	if e.IsUnused() {
		return "unused"
	}

	return fmt.Sprintf("%#x %s", uint64(e)&AddressMask, e.Flags())
}
