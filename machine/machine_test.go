package machine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
)

var _ = Describe("Machine", func() {
	var m *Machine

	BeforeEach(func() {
		var err error
		m, err = MakeBuilder().Build("PC")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should load the bootstrap level 4 table", func() {
		Expect(m.MMU().ReadCR3()).To(Equal(uint64(0x10_5000)))
		Expect(m.Name()).To(Equal("PC"))
	})

	It("should identity map memory with 2 MiB pages", func() {
		for _, addr := range []uint64{0, 0xb8000, 0x10_5008, 0x1ff_fff8} {
			pAddr, err := m.MMU().Translate(addr, mmu.AccessWrite)

			Expect(err).NotTo(HaveOccurred())
			Expect(pAddr).To(Equal(addr))
		}

		steps, err := m.MMU().Walk(0x20_0000)
		Expect(err).NotTo(HaveOccurred())
		Expect(steps).To(HaveLen(3))
	})

	It("should map the level 4 table recursively", func() {
		pAddr, err := m.MMU().Translate(paging.RecursiveP4Address, mmu.AccessRead)

		Expect(err).NotTo(HaveOccurred())
		Expect(pAddr).To(Equal(uint64(0x10_5000)))
	})

	It("should let the paging code walk the bootstrap tables", func() {
		active := paging.NewActivePageTable(m.MMU(), m.MMU())

		pAddr, ok := active.Translate(0x10_1234)

		Expect(ok).To(BeTrue())
		Expect(pAddr).To(Equal(uint64(0x10_1234)))
	})

	It("should list the bootstrap mappings", func() {
		runs, err := m.Mappings()

		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(Equal([]Mapping{{
			VStart: 0,
			PStart: 0,
			Size:   1 << 30,
			Flags:  paging.FlagPresent | paging.FlagWritable | paging.FlagHugePage,
		}}))
		Expect(runs[0].VEnd()).To(Equal(uint64(1 << 30)))
	})

	It("should write the boot information header", func() {
		v, err := m.Storage().ReadUint64(0x10_9000)

		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x100)))
	})

	It("should hand the description over as boot information", func() {
		areas, err := m.BootInfo().MemoryAreas()

		Expect(err).NotTo(HaveOccurred())
		Expect(areas).To(Equal(bootinfo.DefaultDescription().Areas))
		Expect(m.Description().Name).To(Equal("pc"))
	})

	It("should override the TLB size", func() {
		m, err := MakeBuilder().WithTLBSize(2).Build("PC")
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Description().TLBSize).To(Equal(2))
	})

	It("should refuse invalid descriptions", func() {
		d := bootinfo.DefaultDescription()
		d.Bootstrap.P4 = 0x10_5001

		_, err := MakeBuilder().WithDescription(d).Build("PC")

		Expect(err).To(MatchError(ContainSubstring("bootstrap p4 table")))
	})
})
