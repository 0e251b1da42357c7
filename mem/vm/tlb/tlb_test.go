package tlb_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kmem/mem/vm/tlb"
)

var _ = Describe("TLB", func() {
	var t *tlb.TLB

	BeforeEach(func() {
		t = tlb.New(4)
	})

	It("should miss on an empty TLB", func() {
		_, found := t.Lookup(0x10)

		Expect(found).To(BeFalse())
		Expect(t.Stats().Misses).To(Equal(uint64(1)))
	})

	It("should hit after insert", func() {
		t.Insert(tlb.Entry{VPN: 0x10, PFN: 0x200, Writable: true})

		e, found := t.Lookup(0x10)

		Expect(found).To(BeTrue())
		Expect(e.PFN).To(Equal(uint64(0x200)))
		Expect(e.Writable).To(BeTrue())
		Expect(t.Len()).To(Equal(1))
	})

	It("should replace an existing translation in place", func() {
		t.Insert(tlb.Entry{VPN: 0x10, PFN: 0x200})
		t.Insert(tlb.Entry{VPN: 0x10, PFN: 0x300})

		e, _ := t.Lookup(0x10)

		Expect(e.PFN).To(Equal(uint64(0x300)))
		Expect(t.Len()).To(Equal(1))
	})

	It("should evict the least recently used entry", func() {
		for vpn := uint64(1); vpn <= 4; vpn++ {
			t.Insert(tlb.Entry{VPN: vpn, PFN: vpn})
		}

		t.Lookup(1)
		t.Insert(tlb.Entry{VPN: 5, PFN: 5})

		_, found := t.Lookup(2)
		Expect(found).To(BeFalse())
		_, found = t.Lookup(1)
		Expect(found).To(BeTrue())
		Expect(t.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should reuse invalidated ways before evicting", func() {
		for vpn := uint64(1); vpn <= 4; vpn++ {
			t.Insert(tlb.Entry{VPN: vpn, PFN: vpn})
		}

		Expect(t.Invalidate(3)).To(BeTrue())
		t.Insert(tlb.Entry{VPN: 5, PFN: 5})

		Expect(t.Len()).To(Equal(4))
		Expect(t.Stats().Evictions).To(BeZero())
		_, found := t.Lookup(1)
		Expect(found).To(BeTrue())
	})

	It("should report invalidating a missing entry", func() {
		Expect(t.Invalidate(42)).To(BeFalse())
	})

	It("should keep global entries on a non-global flush", func() {
		t.Insert(tlb.Entry{VPN: 1, PFN: 1, Global: true})
		t.Insert(tlb.Entry{VPN: 2, PFN: 2})
		t.Insert(tlb.Entry{VPN: 3, PFN: 3})

		Expect(t.Flush(true)).To(Equal(2))

		Expect(t.Entries()).To(Equal([]tlb.Entry{{VPN: 1, PFN: 1, Global: true}}))
	})

	It("should drop everything on a full flush", func() {
		t.Insert(tlb.Entry{VPN: 1, PFN: 1, Global: true})
		t.Insert(tlb.Entry{VPN: 2, PFN: 2})

		Expect(t.Flush(false)).To(Equal(2))
		Expect(t.Len()).To(BeZero())
	})

	It("should list entries by recency", func() {
		t.Insert(tlb.Entry{VPN: 1, PFN: 1})
		t.Insert(tlb.Entry{VPN: 2, PFN: 2})
		t.Lookup(1)

		Expect(t.Entries()).To(Equal([]tlb.Entry{
			{VPN: 2, PFN: 2},
			{VPN: 1, PFN: 1},
		}))
	})

	It("should refuse a TLB without ways", func() {
		Expect(func() { tlb.New(0) }).To(Panic())
	})
})
