package paging_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kmem/bootinfo"
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/paging"
)

var _ = Describe("Entry", func() {
	It("should start unused", func() {
		var e paging.Entry

		Expect(e.IsUnused()).To(BeTrue())
		_, ok := e.PointedFrame()
		Expect(ok).To(BeFalse())
	})

	DescribeTable("should round trip frames and flags",
		func(frame pmm.Frame, flags paging.EntryFlags) {
			var e paging.Entry
			e.Set(frame, flags)

			pointed, ok := e.PointedFrame()
			Expect(ok).To(BeTrue())
			Expect(pointed).To(Equal(frame))
			Expect(e.Flags()).To(Equal(flags | paging.FlagPresent))
		},
		Entry("no flags", pmm.Frame(0), paging.EntryFlags(0)),
		Entry("writable", pmm.Frame(0x1234), paging.FlagWritable),
		Entry("no execute", pmm.Frame(0xb8),
			paging.FlagWritable|paging.FlagNoExecute),
		Entry("global huge", pmm.Frame(0x200),
			paging.FlagHugePage|paging.FlagGlobal),
		Entry("every flag", pmm.Frame(0xff_ffff_ffff),
			paging.FlagWritable|paging.FlagUserAccessible|
				paging.FlagWriteThrough|paging.FlagNoCache|
				paging.FlagAccessed|paging.FlagDirty|paging.FlagHugePage|
				paging.FlagGlobal|paging.FlagNoExecute),
	)

	It("should pack the x86_64 encoding", func() {
		e := paging.NewEntry(pmm.Frame(0xb8),
			paging.FlagWritable|paging.FlagNoExecute)

		Expect(uint64(e)).To(Equal(uint64(0x8000_0000_000b_8003)))
	})

	It("should not report a frame when not present", func() {
		e := paging.Entry(0xb8000 | uint64(paging.FlagWritable))

		_, ok := e.PointedFrame()

		Expect(ok).To(BeFalse())
		Expect(e.IsUnused()).To(BeFalse())
	})

	It("should clear", func() {
		e := paging.NewEntry(pmm.Frame(5), paging.FlagWritable)

		e.SetUnused()

		Expect(e.IsUnused()).To(BeTrue())
	})

	It("should refuse frames beyond the physical address width", func() {
		var e paging.Entry

		Expect(func() { e.Set(pmm.Frame(1<<40), paging.FlagWritable) }).
			To(Panic())
	})

	It("should render flags", func() {
		flags := paging.FlagPresent | paging.FlagWritable | paging.FlagNoExecute

		Expect(paging.EntryFlags(0).String()).To(Equal("-"))
		Expect(flags.String()).To(Equal("P|W|NX"))
		Expect(paging.Entry(0).String()).To(Equal("unused"))
	})
})

var _ = Describe("FlagsForSection", func() {
	DescribeTable("should derive flags from section attributes",
		func(flags bootinfo.SectionFlags, expected paging.EntryFlags) {
			section := bootinfo.ElfSection{Name: "s", Flags: flags}

			Expect(paging.FlagsForSection(section)).To(Equal(expected))
		},
		Entry("text", bootinfo.SectionAlloc|bootinfo.SectionExecInstr,
			paging.FlagPresent),
		Entry("rodata", bootinfo.SectionAlloc,
			paging.FlagPresent|paging.FlagNoExecute),
		Entry("data", bootinfo.SectionAlloc|bootinfo.SectionWrite,
			paging.FlagPresent|paging.FlagWritable|paging.FlagNoExecute),
		Entry("not allocated", bootinfo.SectionFlags(0),
			paging.FlagNoExecute),
	)
})

var _ = Describe("Level", func() {
	It("should step down to level 1", func() {
		next, ok := paging.Level4.Next()
		Expect(ok).To(BeTrue())
		Expect(next).To(Equal(paging.Level3))

		next, ok = paging.Level2.Next()
		Expect(ok).To(BeTrue())
		Expect(next).To(Equal(paging.Level1))

		_, ok = paging.Level1.Next()
		Expect(ok).To(BeFalse())
	})
})
