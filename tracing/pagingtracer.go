// Package tracing records the events of the paging code and of the MMU.
package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/kmem/datarecording"
	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/sim"
)

// PagingEventTable is the table the events are stored in.
const PagingEventTable = "paging_events"

// A PagingEvent is one row of the event table. Addresses are stored as hex
// strings since kernel addresses do not fit a signed column.
type PagingEvent struct {
	ID     string
	Seq    uint64
	Domain string
	What   string
	VAddr  string
	Frame  string
	Flags  string
	Level  int
	Detail string
}

// A PagingTracer is a hook that stores the events it sees.
type PagingTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	seq     uint64
	counts  map[string]int
}

// NewPagingTracer creates the event table in the recorder.
func NewPagingTracer(backend datarecording.DataRecorder) *PagingTracer {
	backend.CreateTable(PagingEventTable, PagingEvent{})

	return &PagingTracer{
		backend: backend,
		counts:  make(map[string]int),
	}
}

// CollectPagingTrace lets the tracer record the events of domain.
func CollectPagingTrace(domain sim.Hookable, tracer *PagingTracer) {
	domain.AcceptHook(tracer)
}

// Func records the event the hook is triggered with.
func (t *PagingTracer) Func(ctx sim.HookCtx) {
	event, ok := toEvent(ctx)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	event.Seq = t.seq
	event.ID = sim.GetIDGenerator().Generate()
	event.Domain = ctx.Domain.Name()
	t.counts[event.What]++

	t.backend.InsertData(PagingEventTable, event)
}

// Counts returns how many events of each kind were recorded.
func (t *PagingTracer) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		counts[k] = v
	}

	return counts
}

// Terminate writes the buffered events.
func (t *PagingTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func toEvent(ctx sim.HookCtx) (PagingEvent, bool) {
	event := PagingEvent{What: ctx.Pos.Name}

	switch ctx.Pos {
	case paging.HookPosMap, paging.HookPosUnmap:
		e := ctx.Item.(paging.MapEvent)
		event.VAddr = hex(e.Page.Address())
		event.Frame = hex(e.Frame.Address())
		event.Flags = e.Flags.String()
		event.Level = int(paging.Level1)
	case paging.HookPosTableCreate:
		e := ctx.Item.(paging.TableCreateEvent)
		event.VAddr = hex(e.Address)
		event.Frame = hex(e.Frame.Address())
		event.Level = int(e.Level)
	case paging.HookPosSwitch:
		e := ctx.Item.(paging.SwitchEvent)
		event.Frame = hex(e.New.Address())
		event.Detail = "from " + hex(e.Old.Address())
	case mmu.HookPosCR3Write:
		event.Frame = hex(ctx.Item.(uint64))
		event.Detail = "from " + hex(ctx.Detail.(uint64))
	case mmu.HookPosTLBFlush:
		if vAddr, ok := ctx.Item.(uint64); ok {
			event.VAddr = hex(vAddr)
		} else {
			event.Detail = fmt.Sprintf("%v entries", ctx.Detail)
		}
	case mmu.HookPosPageFault:
		pf := ctx.Item.(*mmu.PageFault)
		event.VAddr = hex(pf.VAddr)
		event.Level = pf.Level
		event.Detail = pf.Access.String() + ": " + pf.Reason.String()
	default:
		return PagingEvent{}, false
	}

	return event, true
}
