// Command heapcoredemo exercises a full allocate/GC/finalize cycle against
// a toy linked-list type, with the collector's epoch trace mounted on a
// debug HTTP mux the way the teacher's own tooling exposes pprof-style
// endpoints for long-running processes.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/net/trace"

	"github.com/tinygo-org/heapcore"
	"github.com/tinygo-org/heapcore/allocator"
	"github.com/tinygo-org/heapcore/diagnostics"
	"github.com/tinygo-org/heapcore/object"
	"github.com/tinygo-org/heapcore/policy"
)

var (
	policyPath = flag.String("policy", "", "path to a YAML policy config (optional)")
	httpAddr   = flag.String("http", ":6060", "address to serve /debug/requests on")
	nodeCount  = flag.Int("nodes", 5000, "number of linked-list nodes to allocate")
)

// cons is a minimal linked-list cell: a single pointer-shaped child field
// right after the embedded object header, with an instance counter so the
// demo can report finalization counts.
type cons struct{}

var liveCons atomic.Int64

func (cons) IsArray() bool       { return false }
func (cons) InstanceSize() int32 { return int32(unsafe.Sizeof(object.Header{}) + unsafe.Sizeof(unsafe.Pointer(nil))) }

func (cons) Trace(obj unsafe.Pointer, visit func(unsafe.Pointer)) {
	child := *(*unsafe.Pointer)(unsafe.Add(obj, int(unsafe.Sizeof(object.Header{}))))
	if child != nil {
		visit(child)
	}
}

func (cons) Finalize(unsafe.Pointer) {
	liveCons.Add(-1)
}

func consChild(h *object.Header) *unsafe.Pointer {
	return (*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(h), int(unsafe.Sizeof(object.Header{}))))
}

// demoMutator is the one goroutine in this demo that behaves like a
// managed-language mutator: it owns a root slot and allocates through its
// heapcore.MutatorHandle.
type demoMutator struct {
	mu   sync.Mutex
	root unsafe.Pointer
}

func (m *demoMutator) Roots(visit func(unsafe.Pointer)) {
	m.mu.Lock()
	root := m.root
	m.mu.Unlock()
	if root != nil {
		visit(root)
	}
}

func (m *demoMutator) ParkAtSafepoint() {}

func (m *demoMutator) setRoot(p unsafe.Pointer) {
	m.mu.Lock()
	m.root = p
	m.mu.Unlock()
}

func main() {
	flag.Parse()

	cfg := policy.DefaultConfig()
	if *policyPath != "" {
		loaded, err := policy.LoadConfig(*policyPath)
		if err != nil {
			log.Fatalf("heapcoredemo: %v", err)
		}
		cfg = loaded
	}

	go serveDebug(*httpAddr)

	alloc := allocator.New()
	sched := policy.New(cfg)
	logger := diagnostics.NewStderr()

	h := heapcore.New(alloc, sched, heapcore.Options{
		Logger: logger,
		OnEpochDone: func(epoch int64) {
			logger.Finalizer(epoch, fmt.Sprintf("epoch drained, live cons=%d", liveCons.Load()))
		},
	})
	h.Start()
	defer h.Stop()

	mutator := &demoMutator{}
	handle := h.AttachMutator(mutator)
	defer handle.Close()

	tr := trace.New("heapcoredemo", "build-list")
	defer tr.Finish()

	var head *object.Header
	for i := 0; i < *nodeCount; i++ {
		n := handle.CreateObject(cons{})
		liveCons.Add(1)
		*consChild(n) = unsafe.Pointer(head)
		head = n
	}
	mutator.setRoot(unsafe.Pointer(head))
	tr.LazyPrintf("allocated %d cons cells", *nodeCount)

	handle.ScheduleAndWaitFullGCWithFinalizers()
	stats := h.Stats()
	logger.Collector(stats.LastEpoch, "reported", fmt.Sprintf("retained=%d swept=%d, %s", stats.LastRetained, stats.LastSwept, diagnostics.SinceGC(stats.LastRanAt)))

	// Drop the root, collect again, and report that the whole list died.
	mutator.setRoot(nil)
	handle.ScheduleAndWaitFullGCWithFinalizers()
	stats = h.Stats()
	logger.Collector(stats.LastEpoch, "reported", fmt.Sprintf("retained=%d swept=%d, %s", stats.LastRetained, stats.LastSwept, diagnostics.SinceGC(stats.LastRanAt)))

	time.Sleep(100 * time.Millisecond) // let the last finalizer batch's log line land
	fmt.Printf("final live cons cells: %d\n", liveCons.Load())
}

func serveDebug(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/requests", func(w http.ResponseWriter, r *http.Request) {
		trace.Render(w, r, true)
	})
	log.Printf("heapcoredemo: debug requests at http://%s/debug/requests", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("heapcoredemo: debug http server exited: %v", err)
	}
}
