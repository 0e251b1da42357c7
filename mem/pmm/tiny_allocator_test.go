package pmm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("TinyAllocator", func() {
	var (
		mockCtrl *gomock.Controller
		backing  *MockFrameAllocator
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backing = NewMockFrameAllocator(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should draw exactly three frames", func() {
		gomock.InOrder(
			backing.EXPECT().AllocateFrame().Return(Frame(10), true),
			backing.EXPECT().AllocateFrame().Return(Frame(11), true),
			backing.EXPECT().AllocateFrame().Return(Frame(12), true),
		)

		tiny := NewTinyAllocator(backing)

		Expect(tiny.Frames()).To(Equal([]Frame{10, 11, 12}))
	})

	It("should hand out frames in slot order and then run dry", func() {
		backing.EXPECT().AllocateFrame().Return(Frame(7), true).Times(3)
		tiny := NewTinyAllocator(backing)

		for i := 0; i < 3; i++ {
			f, ok := tiny.AllocateFrame()
			Expect(ok).To(BeTrue())
			Expect(f).To(Equal(Frame(7)))
		}

		_, ok := tiny.AllocateFrame()
		Expect(ok).To(BeFalse())
		Expect(tiny.Free()).To(BeZero())
	})

	It("should keep empty slots when the backing allocator is exhausted", func() {
		gomock.InOrder(
			backing.EXPECT().AllocateFrame().Return(Frame(1), true),
			backing.EXPECT().AllocateFrame().Return(Frame(0), false),
			backing.EXPECT().AllocateFrame().Return(Frame(0), false),
		)

		tiny := NewTinyAllocator(backing)

		Expect(tiny.Frames()).To(Equal([]Frame{1}))
		Expect(tiny.Free()).To(Equal(1))
	})

	It("should accept frames back into empty slots", func() {
		gomock.InOrder(
			backing.EXPECT().AllocateFrame().Return(Frame(1), true),
			backing.EXPECT().AllocateFrame().Return(Frame(2), true),
			backing.EXPECT().AllocateFrame().Return(Frame(3), true),
		)
		tiny := NewTinyAllocator(backing)

		f, _ := tiny.AllocateFrame()
		tiny.DeallocateFrame(f)

		Expect(tiny.Frames()).To(ConsistOf(Frame(1), Frame(2), Frame(3)))
	})

	It("should panic when a fourth frame is returned", func() {
		backing.EXPECT().AllocateFrame().Return(Frame(1), true).Times(3)
		tiny := NewTinyAllocator(backing)

		Expect(func() { tiny.DeallocateFrame(Frame(99)) }).
			To(PanicWith("tiny allocator can only hold 3 frames"))
	})

	It("should never deallocate into the backing allocator", func() {
		backing.EXPECT().AllocateFrame().Return(Frame(1), true).Times(3)
		backing.EXPECT().DeallocateFrame(gomock.Any()).Times(0)
		tiny := NewTinyAllocator(backing)

		f, _ := tiny.AllocateFrame()
		tiny.DeallocateFrame(f)
	})
})
