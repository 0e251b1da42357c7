package mmu

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kmem/mem/memory"
	"github.com/sarchlab/kmem/sim"
)

const (
	p4Addr = 0x1000
	p3Addr = 0x2000
	p2Addr = 0x3000
	p1Addr = 0x4000

	present  = bitPresent
	writable = bitWritable
)

var _ = Describe("MMU", func() {
	var (
		storage *memory.Storage
		m       *Comp
	)

	set := func(table, index, value uint64) {
		Expect(storage.WriteUint64(table+index*8, value)).To(Succeed())
	}

	BeforeEach(func() {
		storage = memory.NewStorage(1 << 32)
		m = MakeBuilder().
			WithStorage(storage).
			WithTLBSize(8).
			WithCR3(p4Addr).
			Build("MMU")

		set(p4Addr, 0, p3Addr|present|writable)
		set(p3Addr, 0, p2Addr|present|writable)
		set(p2Addr, 2, p1Addr|present|writable)
		set(p1Addr, 0, 0x10000|present|writable)
		set(p1Addr, 1, 0x11000|present)
	})

	It("should walk four levels", func() {
		pAddr, err := m.Translate(0x400123, AccessRead)

		Expect(err).NotTo(HaveOccurred())
		Expect(pAddr).To(Equal(uint64(0x10123)))
		Expect(m.Stats().Walks).To(Equal(uint64(1)))
	})

	It("should report the walked entries", func() {
		steps, err := m.Walk(0x400123)

		Expect(err).NotTo(HaveOccurred())
		Expect(steps).To(HaveLen(4))
		Expect(steps[2]).To(Equal(WalkStep{
			Level:     2,
			TableAddr: p2Addr,
			Index:     2,
			Entry:     p1Addr | present | writable,
		}))
	})

	It("should fault on a missing entry", func() {
		_, err := m.Translate(0x800000, AccessRead)

		var pf *PageFault
		Expect(err).To(BeAssignableToTypeOf(pf))
		pf = err.(*PageFault)
		Expect(pf.Reason).To(Equal(FaultNotPresent))
		Expect(pf.Level).To(Equal(2))
		Expect(m.Stats().Faults).To(Equal(uint64(1)))
	})

	It("should look up translations without touching the TLB", func() {
		pAddr, canWrite, steps, err := m.Lookup(0x401008)

		Expect(err).NotTo(HaveOccurred())
		Expect(pAddr).To(Equal(uint64(0x11008)))
		Expect(canWrite).To(BeFalse())
		Expect(steps).To(HaveLen(4))
		Expect(m.TLB().Len()).To(BeZero())
	})

	It("should not count failed lookups as faults", func() {
		_, _, steps, err := m.Lookup(0x800000)

		Expect(err).To(MatchError(ContainSubstring("page not present")))
		Expect(steps).To(HaveLen(3))
		Expect(m.Stats().Faults).To(BeZero())
	})

	It("should fault on non-canonical addresses", func() {
		_, err := m.Translate(0x0000_8000_0000_0000, AccessRead)

		Expect(err).To(MatchError(ContainSubstring("non-canonical")))
	})

	It("should enforce write protection", func() {
		_, err := m.Translate(0x401000, AccessRead)
		Expect(err).NotTo(HaveOccurred())

		err = m.WriteUint64(0x401000, 1)

		Expect(err).To(MatchError(ContainSubstring("read-only")))
	})

	It("should deny writing when a parent entry is read-only", func() {
		set(p2Addr, 2, p1Addr|present)

		err := m.WriteUint64(0x400000, 1)

		Expect(err).To(HaveOccurred())
	})

	It("should translate 2 MiB pages", func() {
		set(p2Addr, 3, 0x20_0000|present|writable|bitHuge)

		pAddr, err := m.Translate(0x6_1234, AccessRead)
		Expect(err).To(HaveOccurred())

		pAddr, err = m.Translate(0x60_1234, AccessRead)
		Expect(err).NotTo(HaveOccurred())
		Expect(pAddr).To(Equal(uint64(0x20_1234)))
	})

	It("should translate 1 GiB pages", func() {
		set(p3Addr, 1, 0x4000_0000|present|bitHuge)

		pAddr, err := m.Translate(0x4123_4567, AccessRead)

		Expect(err).NotTo(HaveOccurred())
		Expect(pAddr).To(Equal(uint64(0x4123_4567)))
	})

	It("should serve stale translations until flushed", func() {
		Expect(m.WriteUint64(0x400000, 0xabcd)).To(Succeed())
		set(p1Addr, 0, 0)

		v, err := m.ReadUint64(0x400000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0xabcd)))

		m.FlushTLBEntry(0x400000)

		_, err = m.ReadUint64(0x400000)
		Expect(err).To(HaveOccurred())
	})

	It("should keep global translations across CR3 writes", func() {
		set(p1Addr, 2, 0x12000|present|bitGlobal)
		_, _ = m.Translate(0x400000, AccessRead)
		_, _ = m.Translate(0x402000, AccessRead)

		m.WriteCR3(p4Addr)

		Expect(m.TLB().Len()).To(Equal(1))
		m.FlushTLB()
		Expect(m.TLB().Len()).To(BeZero())
	})

	It("should read and write across page boundaries", func() {
		set(p1Addr, 1, 0x11000|present|writable)

		Expect(m.Write(0x400ffe, []byte{1, 2, 3, 4})).To(Succeed())

		data, err := m.Read(0x400ffe, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte{1, 2, 3, 4}))

		raw, _ := storage.Read(0x11000, 2)
		Expect(raw).To(Equal([]byte{3, 4}))
	})

	It("should invoke hooks", func() {
		var positions []string
		m.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		m.WriteCR3(p4Addr)
		m.FlushTLB()
		_, _ = m.Translate(0x800000, AccessWrite)

		Expect(positions).To(Equal([]string{"CR3Write", "TLBFlush", "PageFault"}))
	})
})
