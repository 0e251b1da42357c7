// Package pmm manages physical memory frames.
package pmm

import (
	"fmt"
	"iter"
)

const (
	// PageShift is the log2 of the page size.
	PageShift = 12

	// PageSize is the size of a frame and of a page in bytes.
	PageSize = 1 << PageShift
)

// Frame is the ordinal number of a physical, page-aligned unit of memory.
type Frame uint64

// FrameContainingAddress returns the frame that holds the physical address.
func FrameContainingAddress(addr uint64) Frame {
	return Frame(addr >> PageShift)
}

// Address returns the physical start address of the frame.
func (f Frame) Address() uint64 {
	return uint64(f) << PageShift
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame(%#x)", uint64(f))
}

// FrameRange iterates over the frames from start to end, both inclusive.
func FrameRange(start, end Frame) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for f := start; f <= end; f++ {
			if !yield(f) {
				return
			}

			if f == end {
				return
			}
		}
	}
}

// A FrameAllocator hands out unused frames.
//
// A frame returned by AllocateFrame belongs to whoever installs it in a page
// table entry until it is handed back with DeallocateFrame. Implementations
// may refuse deallocation by panicking.
type FrameAllocator interface {
	// AllocateFrame returns an unused frame. The bool is false when no frame
	// is left.
	AllocateFrame() (Frame, bool)

	// DeallocateFrame returns a frame to the allocator.
	DeallocateFrame(frame Frame)
}
