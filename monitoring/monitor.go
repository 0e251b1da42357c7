// Package monitoring serves the state of a booted machine over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/kmem/datarecording"
	"github.com/sarchlab/kmem/mem/vm/mmu"
	"github.com/sarchlab/kmem/mem/vm/paging"
	"github.com/sarchlab/kmem/monitoring/web"
	"github.com/sarchlab/kmem/sim"
	"github.com/sarchlab/kmem/tracing"
	"github.com/sarchlab/kmem/vga"
)

// Monitor turns a booted machine into a server that can be inspected from a
// browser.
type Monitor struct {
	portNumber int
	components []sim.Named
	mmu        *mmu.Comp
	screen     *vga.Writer
	tracer     *tracing.PagingTracer
	trace      datarecording.DataReader

	// machineLock serializes the accesses to the machine. Translations
	// update the TLB.
	machineLock sync.Mutex

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent registers a component to be monitored.
func (m *Monitor) RegisterComponent(c sim.Named) {
	m.components = append(m.components, c)
}

// RegisterMMU registers the MMU used to answer translation queries. The MMU
// is also registered as a component.
func (m *Monitor) RegisterMMU(c *mmu.Comp) {
	m.mmu = c
	m.RegisterComponent(c)
}

// RegisterScreen registers the screen to show.
func (m *Monitor) RegisterScreen(w *vga.Writer) {
	m.screen = w
}

// RegisterTracer registers the tracer whose counters are reported.
func (m *Monitor) RegisterTracer(t *tracing.PagingTracer) {
	m.tracer = t
}

// RegisterTraceReader registers the database the tracer wrote to, so that
// the recorded events can be listed.
func (m *Monitor) RegisterTraceReader(r datarecording.DataReader) {
	r.MapTable(tracing.PagingEventTable, tracing.PagingEvent{})
	m.trace = r
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/translate/{addr}", m.translate)
	r.HandleFunc("/api/tlb", m.listTLB)
	r.HandleFunc("/api/stats", m.listStats)
	r.HandleFunc("/api/screen", m.showScreen)
	r.HandleFunc("/api/trace", m.listTraceCounts)
	r.HandleFunc("/api/trace/events", m.listTraceEvents)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring machine with %s\n", url)

	r := m.router()

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type walkStepRsp struct {
	Level int    `json:"level"`
	Table string `json:"table"`
	Index uint64 `json:"index"`
	Entry string `json:"entry"`
}

type translateRsp struct {
	VAddr    string        `json:"vaddr"`
	PAddr    string        `json:"paddr,omitempty"`
	Writable bool          `json:"writable"`
	Fault    string        `json:"fault,omitempty"`
	Steps    []walkStepRsp `json:"steps"`
}

func (m *Monitor) translate(w http.ResponseWriter, r *http.Request) {
	if m.mmu == nil {
		http.Error(w, "no MMU registered", http.StatusNotFound)
		return
	}

	vAddr, err := strconv.ParseUint(mux.Vars(r)["addr"], 0, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	rsp := translateRsp{
		VAddr: fmt.Sprintf("%#x", vAddr),
		Steps: []walkStepRsp{},
	}

	pAddr, writable, steps, err := m.mmu.Lookup(vAddr)
	for _, s := range steps {
		rsp.Steps = append(rsp.Steps, walkStepRsp{
			Level: s.Level,
			Table: fmt.Sprintf("%#x", s.TableAddr),
			Index: s.Index,
			Entry: paging.Entry(s.Entry).String(),
		})
	}

	if err != nil {
		rsp.Fault = err.Error()
	} else {
		rsp.PAddr = fmt.Sprintf("%#x", pAddr)
		rsp.Writable = writable
	}

	writeJSON(w, rsp)
}

type tlbEntryRsp struct {
	Page     string `json:"page"`
	Frame    string `json:"frame"`
	Writable bool   `json:"writable"`
	Global   bool   `json:"global"`
}

func (m *Monitor) listTLB(w http.ResponseWriter, _ *http.Request) {
	if m.mmu == nil {
		http.Error(w, "no MMU registered", http.StatusNotFound)
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	entries := []tlbEntryRsp{}
	for _, e := range m.mmu.TLB().Entries() {
		entries = append(entries, tlbEntryRsp{
			Page:     fmt.Sprintf("%#x", e.VPN<<12),
			Frame:    fmt.Sprintf("%#x", e.PFN<<12),
			Writable: e.Writable,
			Global:   e.Global,
		})
	}

	writeJSON(w, entries)
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	if m.mmu == nil {
		http.Error(w, "no MMU registered", http.StatusNotFound)
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	writeJSON(w, m.mmu.Stats())
}

func (m *Monitor) showScreen(w http.ResponseWriter, _ *http.Request) {
	if m.screen == nil {
		http.Error(w, "no screen registered", http.StatusNotFound)
		return
	}

	m.machineLock.Lock()
	defer m.machineLock.Unlock()

	rows, err := m.screen.Screen()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows)
}

func (m *Monitor) listTraceCounts(w http.ResponseWriter, _ *http.Request) {
	counts := map[string]int{}
	if m.tracer != nil {
		counts = m.tracer.Counts()
	}

	writeJSON(w, counts)
}

type traceEventsRsp struct {
	Total  int   `json:"total"`
	Events []any `json:"events"`
}

func (m *Monitor) listTraceEvents(w http.ResponseWriter, r *http.Request) {
	if m.trace == nil {
		http.Error(w, "no trace registered", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	params := datarecording.QueryParams{OrderBy: "Seq"}

	if what := q.Get("what"); what != "" {
		params.Where = "What = ?"
		params.Args = []any{what}
	}

	var err error

	if v := q.Get("limit"); v != "" {
		if params.Limit, err = strconv.Atoi(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if v := q.Get("offset"); v != "" {
		if params.Offset, err = strconv.Atoi(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	events, total, err := m.trace.Query(
		r.Context(), tracing.PagingEventTable, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if events == nil {
		events = []any{}
	}

	writeJSON(w, traceEventsRsp{Total: total, Events: events})
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Named {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
