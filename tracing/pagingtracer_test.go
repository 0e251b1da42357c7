package tracing

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/kmem/datarecording"
	"github.com/sarchlab/kmem/kernel"
	"github.com/sarchlab/kmem/machine"
	"github.com/sarchlab/kmem/mem/pmm"
	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/sim"
	"github.com/sarchlab/kmem/vga"
)

type namedDomain struct {
	*sim.HookableBase
}

func (namedDomain) Name() string {
	return "Domain"
}

var _ = Describe("PagingTracer", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockDataRecorder
		tracer   *PagingTracer
		domain   namedDomain
		inserted []PagingEvent
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockDataRecorder(mockCtrl)
		domain = namedDomain{HookableBase: sim.NewHookableBase()}
		inserted = nil

		backend.EXPECT().CreateTable(PagingEventTable, PagingEvent{})
		backend.EXPECT().
			InsertData(PagingEventTable, gomock.Any()).
			Do(func(_ string, entry any) {
				inserted = append(inserted, entry.(PagingEvent))
			}).
			AnyTimes()

		tracer = NewPagingTracer(backend)
		CollectPagingTrace(domain, tracer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should record mappings", func() {
		domain.InvokeHook(sim.HookCtx{
			Domain: domain,
			Pos:    paging.HookPosMap,
			Item: paging.MapEvent{
				Page:  paging.PageContainingAddress(0x40_0000),
				Frame: pmm.Frame(0x10),
				Flags: paging.FlagPresent | paging.FlagWritable,
			},
		})

		Expect(inserted).To(HaveLen(1))
		Expect(inserted[0].ID).NotTo(BeEmpty())
		Expect(inserted[0].Seq).To(Equal(uint64(1)))
		Expect(inserted[0].Domain).To(Equal("Domain"))
		Expect(inserted[0].What).To(Equal("Map"))
		Expect(inserted[0].VAddr).To(Equal("0x400000"))
		Expect(inserted[0].Frame).To(Equal("0x10000"))
		Expect(inserted[0].Flags).To(Equal("P|W"))
		Expect(inserted[0].Level).To(Equal(1))
	})

	It("should record page faults", func() {
		domain.InvokeHook(sim.HookCtx{
			Domain: domain,
			Pos:    mmu.HookPosPageFault,
			Item: &mmu.PageFault{
				VAddr:  0xffff_8000_0000_0000,
				Access: mmu.AccessWrite,
				Reason: mmu.FaultNotPresent,
				Level:  4,
			},
		})

		Expect(inserted).To(HaveLen(1))
		Expect(inserted[0].VAddr).To(Equal("0xffff800000000000"))
		Expect(inserted[0].Level).To(Equal(4))
		Expect(inserted[0].Detail).To(Equal("write: page not present"))
	})

	It("should record full TLB flushes", func() {
		domain.InvokeHook(sim.HookCtx{
			Domain: domain,
			Pos:    mmu.HookPosTLBFlush,
			Detail: 3,
		})

		Expect(inserted[0].VAddr).To(BeEmpty())
		Expect(inserted[0].Detail).To(Equal("3 entries"))
	})

	It("should ignore other hook positions", func() {
		domain.InvokeHook(sim.HookCtx{
			Domain: domain,
			Pos:    &sim.HookPos{Name: "Other"},
		})

		Expect(inserted).To(BeEmpty())
		Expect(tracer.Counts()).To(BeEmpty())
	})

	It("should flush on terminate", func() {
		backend.EXPECT().Flush()

		tracer.Terminate()
	})
})

var _ = Describe("PagingTracer on a booting kernel", func() {
	It("should store the remap in the database", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")
		recorder := datarecording.New(path)
		tracer := NewPagingTracer(recorder)

		m, err := machine.MakeBuilder().Build("PC")
		Expect(err).NotTo(HaveOccurred())

		CollectPagingTrace(m.MMU(), tracer)
		kernel.Boot(m.BootInfo(), m.MMU(), m.MMU(), vga.NewWriter(m.MMU()),
			tracer)
		Expect(recorder.Close()).To(Succeed())

		counts := tracer.Counts()
		Expect(counts["TableCreate"]).To(Equal(5))
		Expect(counts["Switch"]).To(Equal(1))
		Expect(counts["CR3Write"]).To(Equal(1))

		reader := datarecording.NewReader(path + ".sqlite3")
		defer reader.Close()

		reader.MapTable(PagingEventTable, PagingEvent{})

		results, total, err := reader.Query(context.Background(),
			PagingEventTable, datarecording.QueryParams{
				Where: "What = ?",
				Args:  []any{"Switch"},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))

		event := results[0].(*PagingEvent)
		Expect(event.Domain).To(Equal("ActivePageTable"))
		Expect(event.Frame).To(Equal("0x3000"))
		Expect(event.Detail).To(Equal("from 0x105000"))
	})
})
