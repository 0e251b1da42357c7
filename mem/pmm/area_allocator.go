package pmm

import (
	"github.com/google/btree"
)

// AreaAllocator is the bootstrap frame allocator.
//
// It walks the firmware memory areas in increasing address order and hands
// out every frame exactly once, skipping the frames occupied by the kernel
// image and by the boot information blob. Frames cannot be freed.
type AreaAllocator struct {
	nextFreeFrame Frame
	currentArea   Area
	hasArea       bool

	// areas is ordered by last frame. Areas are disjoint, so this is also
	// the order of their base addresses.
	areas *btree.BTreeG[Area]

	kernel   frameSpan
	bootInfo frameSpan

	allocated uint64
}

func areaLess(a, b Area) bool {
	if a.LastFrame() != b.LastFrame() {
		return a.LastFrame() < b.LastFrame()
	}

	return a.Base < b.Base
}

// NewAreaAllocator creates an allocator over the given areas. The kernel and
// the boot information occupy the half-open byte ranges
// [kernelStart, kernelEnd) and [bootInfoStart, bootInfoEnd).
func NewAreaAllocator(
	kernelStart, kernelEnd uint64,
	bootInfoStart, bootInfoEnd uint64,
	areas []Area,
) *AreaAllocator {
	a := &AreaAllocator{
		areas:    btree.NewG(4, areaLess),
		kernel:   spanOf(kernelStart, kernelEnd),
		bootInfo: spanOf(bootInfoStart, bootInfoEnd),
	}

	for _, area := range areas {
		if area.Length == 0 {
			continue
		}

		a.areas.ReplaceOrInsert(area)
	}

	a.chooseNextArea()

	return a
}

// AllocateFrame returns the lowest frame that has not been handed out and is
// not reserved.
func (a *AreaAllocator) AllocateFrame() (Frame, bool) {
	for a.hasArea {
		frame := a.nextFreeFrame

		switch {
		case frame > a.currentArea.LastFrame():
			a.chooseNextArea()
		case a.kernel.contains(frame):
			a.nextFreeFrame = a.kernel.last + 1
		case a.bootInfo.contains(frame):
			a.nextFreeFrame = a.bootInfo.last + 1
		default:
			a.nextFreeFrame++
			a.allocated++

			return frame, true
		}
	}

	return 0, false
}

// DeallocateFrame is not supported by the bootstrap allocator.
func (a *AreaAllocator) DeallocateFrame(frame Frame) {
	panic("area allocator cannot deallocate " + frame.String())
}

// chooseNextArea selects the lowest area that still has frames at or after
// the cursor.
func (a *AreaAllocator) chooseNextArea() {
	pivot := Area{Base: 0, Length: a.nextFreeFrame.Address() + PageSize}

	a.hasArea = false
	a.areas.AscendGreaterOrEqual(pivot, func(area Area) bool {
		a.currentArea = area
		a.hasArea = true

		return false
	})

	if !a.hasArea {
		return
	}

	if start := a.currentArea.FirstFrame(); a.nextFreeFrame < start {
		a.nextFreeFrame = start
	}
}

// Allocated returns the number of frames handed out so far.
func (a *AreaAllocator) Allocated() uint64 {
	return a.allocated
}

// NextFree returns the frame the allocator will consider next.
func (a *AreaAllocator) NextFree() Frame {
	return a.nextFreeFrame
}

// CurrentArea returns the area the allocator is drawing from. The bool is
// false once all areas are exhausted.
func (a *AreaAllocator) CurrentArea() (Area, bool) {
	return a.currentArea, a.hasArea
}
