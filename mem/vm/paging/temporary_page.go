package paging

import (
	"fmt"
	"log"

	"github.com/sarchlab/kmem/mem/pmm"
)

// A TemporaryPage is a reserved page used to reach any frame through the
// active hierarchy. It brings its own frames for the tables it needs.
type TemporaryPage struct {
	page      Page
	allocator *pmm.TinyAllocator
}

// NewTemporaryPage reserves page and draws the frames for its tables from
// alloc.
func NewTemporaryPage(page Page, alloc pmm.FrameAllocator) *TemporaryPage {
	return &TemporaryPage{
		page:      page,
		allocator: pmm.NewTinyAllocator(alloc),
	}
}

// Page returns the reserved page.
func (t *TemporaryPage) Page() Page {
	return t.page
}

// Allocator returns the pool of frames used for the tables of the page.
func (t *TemporaryPage) Allocator() *pmm.TinyAllocator {
	return t.allocator
}

// Map maps frame at the temporary page and returns its virtual address. It
// panics if the page is already in use.
func (t *TemporaryPage) Map(
	frame pmm.Frame,
	active *ActivePageTable,
) (uint64, error) {
	if _, ok := active.TranslatePage(t.page); ok {
		log.Panic("temporary page is already mapped")
	}

	err := active.MapTo(t.page, frame, FlagWritable, t.allocator)
	if err != nil {
		return 0, fmt.Errorf("temporary page: %w", err)
	}

	return t.page.Address(), nil
}

// MapTableFrame maps a frame that holds a table and returns a handle on it.
// The handle has no next level, whatever the level of the table is.
func (t *TemporaryPage) MapTableFrame(
	frame pmm.Frame,
	active *ActivePageTable,
) (*Table, error) {
	addr, err := t.Map(frame, active)
	if err != nil {
		return nil, err
	}

	return NewTable(addr, Level1, active.p4.mem), nil
}

// Unmap releases the temporary page.
func (t *TemporaryPage) Unmap(active *ActivePageTable) {
	active.Unmap(t.page, t.allocator)
}
