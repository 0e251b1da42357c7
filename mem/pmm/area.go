package pmm

import "fmt"

// An Area is a half-open range [Base, Base+Length) of physical memory that
// the firmware reports as usable.
type Area struct {
	Base   uint64
	Length uint64
}

// End returns the first address after the area.
func (a Area) End() uint64 {
	return a.Base + a.Length
}

// FirstFrame returns the frame that holds the first byte of the area.
func (a Area) FirstFrame() Frame {
	return FrameContainingAddress(a.Base)
}

// LastFrame returns the frame that holds the last byte of the area.
func (a Area) LastFrame() Frame {
	return FrameContainingAddress(a.Base + a.Length - 1)
}

func (a Area) String() string {
	return fmt.Sprintf("[%#x, %#x)", a.Base, a.End())
}

// frameSpan is an inclusive run of frames that must never be handed out.
type frameSpan struct {
	first, last Frame
	empty       bool
}

// spanOf returns the frames touched by the byte range [start, end).
func spanOf(start, end uint64) frameSpan {
	if end <= start {
		return frameSpan{empty: true}
	}

	return frameSpan{
		first: FrameContainingAddress(start),
		last:  FrameContainingAddress(end - 1),
	}
}

func (s frameSpan) contains(f Frame) bool {
	return !s.empty && f >= s.first && f <= s.last
}
