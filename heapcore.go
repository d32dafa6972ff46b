// Package heapcore is the root-level facade: it wires the gcnode registry,
// the object factory, the epoch state machine, the safepoint barrier, the
// collector, and the finalizer processor into one runnable managed heap.
// The collector takes the others' concrete types as constructor arguments
// but never creates them — heapcore.Heap is where one of each is created
// and those wires actually get connected, the way the teacher's own top-level build orchestration wires
// together independent compiler passes that don't import each other.
package heapcore

import (
	"sync"

	"github.com/tinygo-org/heapcore/collector"
	"github.com/tinygo-org/heapcore/diagnostics"
	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/finalizer"
	"github.com/tinygo-org/heapcore/gcnode"
	"github.com/tinygo-org/heapcore/gcstate"
	"github.com/tinygo-org/heapcore/object"
	"github.com/tinygo-org/heapcore/safepoint"
)

// Stats is a snapshot of the most recently completed collection cycle.
type Stats = collector.Stats

// Heap owns every shared piece of GC state for one managed heap. An
// embedder creates exactly one Heap per process (or per isolate, if it runs
// more than one), calls Start once, and attaches a MutatorHandle per
// mutator thread.
type Heap struct {
	registry  *gcnode.Registry
	epoch     *gcstate.EpochState
	barrier   *safepoint.Barrier
	alloc     external.Allocator
	scheduler external.Scheduler
	col       *collector.Collector
	fin       *finalizer.Processor
	log       *diagnostics.Logger
	tracer    *diagnostics.Tracer

	mu       sync.Mutex
	handles  map[*MutatorHandle]struct{}
}

// Options configures an optional onEpochDone callback and diagnostics
// sinks; the zero value of Options is a reasonable default (stderr
// logging, a "heapcore" trace family, no epoch callback).
type Options struct {
	OnEpochDone  func(epoch int64)
	Logger       *diagnostics.Logger
	TraceFamily  string
}

// New creates a Heap backed by alloc and scheduler but does not start its
// collector goroutine; call Start for that.
func New(alloc external.Allocator, scheduler external.Scheduler, opts Options) *Heap {
	if opts.Logger == nil {
		opts.Logger = diagnostics.NewStderr()
	}
	if opts.TraceFamily == "" {
		opts.TraceFamily = "heapcore"
	}

	h := &Heap{
		registry:  gcnode.NewRegistry(alloc),
		epoch:     gcstate.New(),
		barrier:   safepoint.NewBarrier(),
		alloc:     alloc,
		scheduler: scheduler,
		log:       opts.Logger,
		tracer:    diagnostics.NewTracer(opts.TraceFamily),
		handles:   make(map[*MutatorHandle]struct{}),
	}
	h.fin = finalizer.New(alloc, opts.OnEpochDone)
	h.col = collector.New(h.registry, h.epoch, h.barrier, h, h.alloc, h.fin,
		h.publishAll, h.onCycleDone, h.log, h.tracer)
	return h
}

// resettableScheduler is satisfied by external.Scheduler implementations
// that accumulate pressure counters across a cycle and need to clear them
// once that cycle completes — policy.Scheduler is the reference
// implementation. heapcore's core packages never import policy directly;
// this type-assertion is the seam that lets Heap act on it anyway.
type resettableScheduler interface {
	Reset()
}

// onCycleDone is the collector's per-epoch-completion hook (spec §6): if the
// configured scheduler tracks its own pressure counters, this is where they
// get cleared, so a scheduler whose ShouldTrigger once flipped true doesn't
// keep requesting a collection on every subsequent poll forever.
func (h *Heap) onCycleDone(epoch int64) {
	if r, ok := h.scheduler.(resettableScheduler); ok {
		r.Reset()
	}
}

// Start launches the collector goroutine. The finalizer worker is not
// started here; it starts on the first batch the collector hands it.
func (h *Heap) Start() {
	h.col.Start()
}

// Stop shuts down the collector goroutine, waiting for it to exit. Any
// mutator handles still attached must be detached by the caller first.
// It then stops the finalizer processor, waiting for its worker to finish
// any batch scheduled by the final collection and exit.
func (h *Heap) Stop() {
	h.col.Stop()
	h.fin.StopFinalizerThread(true)
}

// Registry exposes the underlying node registry, mainly for diagnostics and
// tests that want to inspect live-object counts directly.
func (h *Heap) Registry() *gcnode.Registry { return h.registry }

// Stats returns the most recently completed collection's summary.
func (h *Heap) Stats() Stats { return h.col.Stats() }

// ForEachMutator implements external.ThreadRegistry by forwarding to every
// currently attached handle's embedder-supplied Mutator.
func (h *Heap) ForEachMutator(fn func(external.Mutator)) {
	h.mu.Lock()
	handles := make([]*MutatorHandle, 0, len(h.handles))
	for handle := range h.handles {
		handles = append(handles, handle)
	}
	h.mu.Unlock()
	for _, handle := range handles {
		fn(handle.mutator)
	}
}

// publishAll splices every attached handle's thread-local producer queue
// onto the registry. Called by the collector at the start of every mark
// phase (spec §4.5).
func (h *Heap) publishAll() {
	h.mu.Lock()
	handles := make([]*MutatorHandle, 0, len(h.handles))
	for handle := range h.handles {
		handles = append(handles, handle)
	}
	h.mu.Unlock()
	for _, handle := range handles {
		handle.queue.Publish()
	}
}

// MutatorHandle is one mutator thread's view of the heap: an object
// factory for allocation, and the four safepoint poll points. An embedder
// creates one per OS thread or goroutine that runs managed code, and must
// call Close on that thread's teardown.
type MutatorHandle struct {
	heap    *Heap
	mutator external.Mutator
	producer *gcnode.Producer
	queue   *object.ThreadQueue
	sp      *safepoint.Mutator
}

// AttachMutator registers a new mutator thread against the heap. mutator is
// the embedder's external.Mutator implementation (root enumeration and
// parking); the returned handle is used for everything else a mutator
// thread does against the heap.
func (h *Heap) AttachMutator(mutator external.Mutator) *MutatorHandle {
	producer := gcnode.NewProducer(h.registry, h.alloc)
	handle := &MutatorHandle{
		heap:     h,
		mutator:  mutator,
		producer: producer,
		queue:    object.NewThreadQueue(producer),
		sp:       safepoint.NewMutator(h.barrier, h.scheduler, h.epoch, h.fin),
	}
	h.mu.Lock()
	h.handles[handle] = struct{}{}
	h.mu.Unlock()
	return handle
}

// Close publishes any unpublished allocations, unregisters the handle from
// its barrier, and detaches it from the heap. Must be called exactly once,
// on the owning thread's teardown.
func (m *MutatorHandle) Close() {
	m.queue.Close()
	m.sp.Close()
	m.heap.mu.Lock()
	delete(m.heap.handles, m)
	m.heap.mu.Unlock()
}

// CreateObject allocates a non-array instance of t. The safepoint poll
// point runs first (spec §4.4/§9: "every allocation be preceded by
// onAllocation(size)"), the way the Kotlin/Native original this is ported
// from wires the poll inside its allocator wrapper rather than leaving it
// to the caller to remember.
func (m *MutatorHandle) CreateObject(t external.TypeDescriptor) *object.Header {
	m.sp.OnAllocation(uintptr(t.InstanceSize()))
	return m.queue.CreateObject(t)
}

// CreateArray allocates an array instance of t with count elements.
func (m *MutatorHandle) CreateArray(t external.TypeDescriptor, count int32) *object.ArrayHeader {
	m.sp.OnAllocation(uintptr(-t.InstanceSize()) * uintptr(count))
	return m.queue.CreateArray(t, count)
}

// OnFunctionPrologue is the fast-path poll at function entry.
func (m *MutatorHandle) OnFunctionPrologue(weight int64) { m.sp.OnFunctionPrologue(weight) }

// OnLoopBackedge is the fast-path poll at a loop back-edge.
func (m *MutatorHandle) OnLoopBackedge(weight int64) { m.sp.OnLoopBackedge(weight) }

// OnExceptionUnwind is the fast-path poll during exception/panic unwind.
func (m *MutatorHandle) OnExceptionUnwind(weight int64) { m.sp.OnExceptionUnwind(weight) }

// OnAllocation must be called just before every managed-heap allocation.
func (m *MutatorHandle) OnAllocation(size uintptr) { m.sp.OnAllocation(size) }

// OnOOM reports that the allocator could not satisfy a request.
func (m *MutatorHandle) OnOOM(size uintptr) { m.sp.OnOOM(size) }

// ScheduleAndWaitFullGC requests a collection and blocks until it finishes.
func (m *MutatorHandle) ScheduleAndWaitFullGC() { m.sp.ScheduleAndWaitFullGC() }

// ScheduleAndWaitFullGCWithFinalizers additionally waits for the finalizer
// processor to drain the triggered epoch.
func (m *MutatorHandle) ScheduleAndWaitFullGCWithFinalizers() {
	m.sp.ScheduleAndWaitFullGCWithFinalizers()
}
