// Package bootinfo describes what the boot loader hands over to the kernel:
// the physical memory map, the ELF sections of the kernel image, and the
// location of the boot information itself.
package bootinfo

import (
	"errors"

	"github.com/sarchlab/kmem/mem/pmm"
)

var (
	// ErrNoMemoryMap is returned when the boot loader did not report any
	// memory area.
	ErrNoMemoryMap = errors.New("memory map required")

	// ErrNoElfSections is returned when the boot loader did not report the
	// sections of the kernel image.
	ErrNoElfSections = errors.New("elf sections required")
)

// Info is the boot information available to the kernel.
type Info interface {
	// MemoryAreas returns the usable physical memory areas.
	MemoryAreas() ([]pmm.Area, error)

	// ElfSections returns the section headers of the kernel image.
	ElfSections() ([]ElfSection, error)

	// StartAddress returns the first byte of the boot information.
	StartAddress() uint64

	// EndAddress returns the first byte after the boot information.
	EndAddress() uint64
}

// KernelRange returns the range [start, end) covered by the allocated
// sections of the kernel image.
func KernelRange(sections []ElfSection) (start, end uint64) {
	first := true

	for _, s := range sections {
		if !s.IsAllocated() {
			continue
		}

		if first || s.StartAddress() < start {
			start = s.StartAddress()
		}

		if first || s.EndAddress() > end {
			end = s.EndAddress()
		}

		first = false
	}

	return start, end
}
