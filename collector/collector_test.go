package collector

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/heapcore/allocator"
	"github.com/tinygo-org/heapcore/diagnostics"
	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/finalizer"
	"github.com/tinygo-org/heapcore/gcnode"
	"github.com/tinygo-org/heapcore/gcstate"
	"github.com/tinygo-org/heapcore/object"
	"github.com/tinygo-org/heapcore/safepoint"
)

// linkedType is an external.TypeDescriptor for a node with a single
// pointer-shaped child field right after the header, the same shape the
// spec's worked examples in §8 use for chains and trees.
type linkedType struct{}

func (linkedType) IsArray() bool      { return false }
func (linkedType) InstanceSize() int32 { return int32(unsafe.Sizeof(object.Header{}) + unsafe.Sizeof(unsafe.Pointer(nil))) }
func (linkedType) Trace(obj unsafe.Pointer, visit func(unsafe.Pointer)) {
	child := *(*unsafe.Pointer)(unsafe.Add(obj, int(unsafe.Sizeof(object.Header{}))))
	if child != nil {
		visit(child)
	}
}
func (linkedType) Finalize(unsafe.Pointer) {}

// arrayType is an external.TypeDescriptor for an array of opaque 8-byte
// elements with no pointer children, used for the §8 "array survives two
// cycles" scenario.
type arrayType struct{}

func (arrayType) IsArray() bool       { return true }
func (arrayType) InstanceSize() int32 { return -8 }
func (arrayType) Trace(unsafe.Pointer, func(unsafe.Pointer)) {}
func (arrayType) Finalize(unsafe.Pointer)                    {}

// fakeMutator is a stub external.Mutator exposing a fixed, mutable root set.
type fakeMutator struct {
	mu    sync.Mutex
	roots []unsafe.Pointer
}

func (m *fakeMutator) setRoots(roots ...unsafe.Pointer) {
	m.mu.Lock()
	m.roots = roots
	m.mu.Unlock()
}

func (m *fakeMutator) Roots(visit func(unsafe.Pointer)) {
	m.mu.Lock()
	roots := append([]unsafe.Pointer(nil), m.roots...)
	m.mu.Unlock()
	for _, r := range roots {
		visit(r)
	}
}

func (m *fakeMutator) ParkAtSafepoint() {}

// fakeThreadRegistry enumerates a fixed slice of mutators, standing in for a
// runtime's thread-data table.
type fakeThreadRegistry struct {
	mu       sync.Mutex
	mutators []external.Mutator
}

func (r *fakeThreadRegistry) add(m external.Mutator) {
	r.mu.Lock()
	r.mutators = append(r.mutators, m)
	r.mu.Unlock()
}

func (r *fakeThreadRegistry) ForEachMutator(fn func(external.Mutator)) {
	r.mu.Lock()
	mutators := append([]external.Mutator(nil), r.mutators...)
	r.mu.Unlock()
	for _, m := range mutators {
		fn(m)
	}
}

// harness bundles the wiring a real embedder (heapcore.go) would otherwise
// assemble, scoped to what collector tests need.
type harness struct {
	alloc    external.Allocator
	registry *gcnode.Registry
	epoch    *gcstate.EpochState
	barrier  *safepoint.Barrier
	threads  *fakeThreadRegistry
	fin      *finalizer.Processor
	col      *Collector
	queue    *object.ThreadQueue
	producer *gcnode.Producer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	alloc := allocator.New()
	registry := gcnode.NewRegistry(alloc)
	producer := gcnode.NewProducer(registry, alloc)
	queue := object.NewThreadQueue(producer)

	h := &harness{
		alloc:    alloc,
		registry: registry,
		epoch:    gcstate.New(),
		barrier:  safepoint.NewBarrier(),
		threads:  &fakeThreadRegistry{},
		fin:      finalizer.New(alloc, nil),
		queue:    queue,
		producer: producer,
	}
	h.col = New(h.registry, h.epoch, h.barrier, h.threads, h.alloc, h.fin,
		func() { h.queue.Publish() },
		nil,
		diagnostics.New(newDiscard()),
		diagnostics.NewTracer("heapcore_test"),
	)
	h.col.Start()
	t.Cleanup(h.col.Stop)
	return h
}

// runOneCycle requests one collection and blocks until it completes. The
// harness's collector goroutine is started once in newHarness and stopped
// on test cleanup, so this can be called more than once per test (spec §8's
// "survives two cycles" scenario).
func (h *harness) runOneCycle(t *testing.T) Stats {
	t.Helper()
	epoch, _ := h.epoch.RequestCollection()
	h.epoch.WaitForFinish(epoch)
	return h.col.Stats()
}

type discard struct{}

func newDiscard() *discard { return &discard{} }
func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestCollectorRetainsAllReachableObjects(t *testing.T) {
	h := newHarness(t)

	var heads []*object.Header
	for i := 0; i < 1000; i++ {
		heads = append(heads, h.queue.CreateObject(linkedType{}))
	}
	h.queue.Publish()

	mutator := &fakeMutator{}
	roots := make([]unsafe.Pointer, len(heads))
	for i, head := range heads {
		roots[i] = unsafe.Pointer(head)
	}
	mutator.setRoots(roots...)
	h.threads.add(mutator)

	stats := h.runOneCycle(t)
	require.Equal(t, 0, stats.LastSwept)
	require.Equal(t, 1000, stats.LastRetained)
	require.Equal(t, 1000, h.registry.Size())
}

func TestCollectorSweepsUnreachableHalf(t *testing.T) {
	h := newHarness(t)

	var heads []*object.Header
	for i := 0; i < 1000; i++ {
		heads = append(heads, h.queue.CreateObject(linkedType{}))
	}
	h.queue.Publish()

	mutator := &fakeMutator{}
	roots := make([]unsafe.Pointer, 500)
	for i := 0; i < 500; i++ {
		roots[i] = unsafe.Pointer(heads[i])
	}
	mutator.setRoots(roots...)
	h.threads.add(mutator)

	stats := h.runOneCycle(t)
	require.Equal(t, 500, stats.LastSwept)
	require.Equal(t, 500, stats.LastRetained)
	require.Equal(t, 500, h.registry.Size())
}

func TestCollectorRetainsArrayAcrossTwoCycles(t *testing.T) {
	h := newHarness(t)

	arr := h.queue.CreateArray(arrayType{}, 10000)
	h.queue.Publish()
	ptr := unsafe.Pointer(arr)
	count := arr.Count

	mutator := &fakeMutator{}
	mutator.setRoots(ptr)
	h.threads.add(mutator)

	ref := object.FromArrayHeader(arr)
	require.Equal(t, object.White, ref.GCColor())

	h.runOneCycle(t)
	require.Equal(t, object.White, ref.GCColor(), "color repaints back to White after each sweep")
	require.Equal(t, ptr, unsafe.Pointer(arr), "surviving array keeps the same address")
	require.Equal(t, count, arr.Count)

	h.runOneCycle(t)
	require.Equal(t, object.White, ref.GCColor())
	require.Equal(t, ptr, unsafe.Pointer(arr))
	require.Equal(t, count, arr.Count)
}

func TestCollectorPublishesUnpublishedProducersFromTwoThreads(t *testing.T) {
	h := newHarness(t)

	producer2 := gcnode.NewProducer(h.registry, h.alloc)
	queue2 := object.NewThreadQueue(producer2)

	headA := h.queue.CreateObject(linkedType{}) // not yet published
	headB := queue2.CreateObject(linkedType{})  // not yet published

	mutator := &fakeMutator{}
	mutator.setRoots(unsafe.Pointer(headA), unsafe.Pointer(headB))
	h.threads.add(mutator)

	// Override publishAll to drain both thread-local queues, mirroring how
	// heapcore.go's mutator table would publish every registered mutator.
	h.col.publishAll = func() {
		h.queue.Publish()
		queue2.Publish()
	}

	stats := h.runOneCycle(t)
	require.Equal(t, 0, stats.LastSwept)
	require.Equal(t, 2, stats.LastRetained)
}

func TestConcurrentScheduleAndWaitFullGCCallersAllObserveCompletion(t *testing.T) {
	h := newHarness(t)

	mut := safepoint.NewMutator(h.barrier, noopScheduler{}, h.epoch, h.fin)
	defer mut.Close()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mut.ScheduleAndWaitFullGC()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent ScheduleAndWaitFullGC callers never returned")
	}
}

// noopScheduler is a minimal external.Scheduler stub for tests that only
// exercise the explicit ScheduleAndWaitFullGC path, never the poll-triggered
// one.
type noopScheduler struct{}

func (noopScheduler) NoteWork(int64)          {}
func (noopScheduler) NoteAllocation(uintptr)  {}
func (noopScheduler) NoteOOM(uintptr)         {}
func (noopScheduler) ShouldTrigger() bool     { return false }
func (noopScheduler) Epoch() int64            { return 0 }
