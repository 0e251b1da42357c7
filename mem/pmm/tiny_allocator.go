package pmm

// tinyAllocatorSlots is enough to build the level 3, 2 and 1 tables needed to
// map a single page.
const tinyAllocatorSlots = 3

// TinyAllocator holds a fixed pool of three frames drawn from another
// allocator.
type TinyAllocator struct {
	frames [tinyAllocatorSlots]Frame
	filled [tinyAllocatorSlots]bool
}

// NewTinyAllocator draws three frames from alloc. Slots stay empty if alloc
// runs out.
func NewTinyAllocator(alloc FrameAllocator) *TinyAllocator {
	t := &TinyAllocator{}

	for i := range t.frames {
		t.frames[i], t.filled[i] = alloc.AllocateFrame()
	}

	return t
}

// AllocateFrame takes the first frame left in the pool.
func (t *TinyAllocator) AllocateFrame() (Frame, bool) {
	for i := range t.frames {
		if t.filled[i] {
			t.filled[i] = false
			return t.frames[i], true
		}
	}

	return 0, false
}

// DeallocateFrame puts a frame back into the first empty slot. It panics if
// the pool is already full.
func (t *TinyAllocator) DeallocateFrame(frame Frame) {
	for i := range t.frames {
		if !t.filled[i] {
			t.frames[i] = frame
			t.filled[i] = true

			return
		}
	}

	panic("tiny allocator can only hold 3 frames")
}

// Frames returns the frames currently held in the pool.
func (t *TinyAllocator) Frames() []Frame {
	frames := make([]Frame, 0, tinyAllocatorSlots)

	for i := range t.frames {
		if t.filled[i] {
			frames = append(frames, t.frames[i])
		}
	}

	return frames
}

// Free returns the number of frames left in the pool.
func (t *TinyAllocator) Free() int {
	n := 0

	for _, filled := range t.filled {
		if filled {
			n++
		}
	}

	return n
}
