package paging

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/mem/pmm"
)

const (
	// EntryCount is the number of entries in a table.
	EntryCount = 512

	nonCanonicalStart = uint64(0x0000_8000_0000_0000)
	nonCanonicalEnd   = uint64(0xffff_8000_0000_0000)
)

// A Page is the ordinal number of a 4 KiB page of the virtual address space.
type Page uint64

// IsCanonical tells if vAddr lies outside the non-canonical gap.
func IsCanonical(vAddr uint64) bool {
	return vAddr < nonCanonicalStart || vAddr >= nonCanonicalEnd
}

// PageContainingAddress returns the page holding vAddr. It panics if the
// address is not canonical.
func PageContainingAddress(vAddr uint64) Page {
	if !IsCanonical(vAddr) {
		log.Panicf("invalid address: %#x", vAddr)
	}

	return Page(vAddr>>pmm.PageShift) & pageNumberMask
}

// pageNumberMask keeps the 36 bits covered by the four table indices.
const pageNumberMask = Page(1)<<36 - 1

// PageFromIndices builds the page selected by the four table indices.
func PageFromIndices(p4, p3, p2, p1 uint64) Page {
	for _, i := range []uint64{p4, p3, p2, p1} {
		if i >= EntryCount {
			log.Panicf("table index %d out of range", i)
		}
	}

	return Page(p4<<27 | p3<<18 | p2<<9 | p1)
}

// Address returns the sign-extended start address of the page.
func (p Page) Address() uint64 {
	return signExtend(uint64(p) << pmm.PageShift)
}

// P4Index returns the index into the level 4 table.
func (p Page) P4Index() uint64 {
	return (uint64(p) >> 27) & 0o777
}

// P3Index returns the index into the level 3 table.
func (p Page) P3Index() uint64 {
	return (uint64(p) >> 18) & 0o777
}

// P2Index returns the index into the level 2 table.
func (p Page) P2Index() uint64 {
	return (uint64(p) >> 9) & 0o777
}

// P1Index returns the index into the level 1 table.
func (p Page) P1Index() uint64 {
	return uint64(p) & 0o777
}

func (p Page) String() string {
	return fmt.Sprintf("Page(%#x)", p.Address())
}

// signExtend copies bit 47 into bits 48 to 63.
func signExtend(addr uint64) uint64 {
	if addr&(1<<47) != 0 {
		return addr | 0xffff_0000_0000_0000
	}

	return addr & 0x0000_ffff_ffff_ffff
}
