// Package kernel brings up memory management at boot: it builds the frame
// allocator from the boot information and moves the kernel from the
// bootstrap page tables to page tables that enforce section permissions.
package kernel

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/vga"
)

// A Context is the state of the kernel during boot. There is one per booted
// machine.
type Context struct {
	BootInfo  bootinfo.Info
	Sections  []bootinfo.ElfSection
	CPU       paging.CPU
	Allocator *pmm.AreaAllocator
	Active    *paging.ActivePageTable

	// Screen receives diagnostics. It may be nil.
	Screen *vga.Writer

	// Logger receives the same diagnostics as Screen.
	Logger *log.Logger

	State RemapState
}

// NewContext reads the boot information and sets up the frame allocator and
// the handle on the active page table.
func NewContext(
	info bootinfo.Info,
	mem paging.Memory,
	cpu paging.CPU,
	screen *vga.Writer,
) (*Context, error) {
	areas, err := info.MemoryAreas()
	if err != nil {
		return nil, fmt.Errorf("reading boot information: %w", err)
	}

	sections, err := info.ElfSections()
	if err != nil {
		return nil, fmt.Errorf("reading boot information: %w", err)
	}

	kernelStart, kernelEnd := bootinfo.KernelRange(sections)

	ctx := &Context{
		BootInfo: info,
		Sections: sections,
		CPU:      cpu,
		Allocator: pmm.NewAreaAllocator(
			kernelStart, kernelEnd,
			info.StartAddress(), info.EndAddress(),
			areas,
		),
		Active: paging.NewActivePageTable(mem, cpu),
		Screen: screen,
		Logger: log.Default(),
	}

	ctx.Logf(vga.LevelDebug, "kernel at [%#x, %#x), boot info at [%#x, %#x)",
		kernelStart, kernelEnd, info.StartAddress(), info.EndAddress())

	for _, a := range areas {
		ctx.Logf(vga.LevelDebug, "memory area %s", a)
	}

	return ctx, nil
}

// Logf writes a diagnostic line to the logger and to the screen.
func (c *Context) Logf(level vga.Level, format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf("[%s] "+format, append([]any{level}, args...)...)
	}

	if c.Screen == nil {
		return
	}

	if err := c.Screen.Logf(level, format, args...); err != nil {
		c.screenUnavailable(err)
	}
}

func (c *Context) screenUnavailable(err error) {
	if c.Logger != nil {
		c.Logger.Printf("[%s] screen unavailable: %v", vga.LevelWarn, err)
	}
}
