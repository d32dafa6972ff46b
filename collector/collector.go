// Package collector implements the mark-and-sweep state machine from spec
// §4.5: Idle, Initiating, Marking, Sweeping, Finalizing. It runs on a
// dedicated goroutine standing in for the spec's "dedicated worker
// thread", driven by the epoch state machine in package gcstate.
package collector

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/tinygo-org/heapcore/diagnostics"
	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/finalizer"
	"github.com/tinygo-org/heapcore/gcnode"
	"github.com/tinygo-org/heapcore/gcstate"
	"github.com/tinygo-org/heapcore/object"
	"github.com/tinygo-org/heapcore/safepoint"
)

// Stats is a snapshot of the collector's most recent completed cycle, for
// diagnostics and tests.
type Stats struct {
	LastEpoch    int64
	LastRanAt    time.Time
	LastSwept    int
	LastRetained int
}

// Collector drives one GC cycle per requested epoch.
type Collector struct {
	registry    *gcnode.Registry
	epoch       *gcstate.EpochState
	barrier     *safepoint.Barrier
	threads     external.ThreadRegistry
	alloc       external.Allocator
	finalizer   *finalizer.Processor
	publishAll  func()
	onCycleDone func(epoch int64)
	log         *diagnostics.Logger
	tracer      *diagnostics.Tracer

	mu    sync.Mutex
	stats Stats

	wg sync.WaitGroup
}

// New creates a Collector. publishAll must publish every registered
// mutator's producer queue (spec §4.5 Marking: "for every mutator, publish
// its still-local producer queue"); the collector doesn't track producers
// itself since ownership of each mutator's ThreadQueue belongs to the
// embedder's mutator-lifecycle code, not to heapcore's core packages.
//
// onCycleDone, if non-nil, runs once per completed cycle, just before the
// epoch is marked finished, so a WaitForFinish caller observes its effects —
// the embedder's hook for resetting a scheduler's
// accumulated pressure counters (spec §6: heapcore never depends on a
// scheduler's internals, but the embedder that constructed one usually
// does, and this is where it gets to act on "a cycle just finished").
func New(
	registry *gcnode.Registry,
	epoch *gcstate.EpochState,
	barrier *safepoint.Barrier,
	threads external.ThreadRegistry,
	alloc external.Allocator,
	fin *finalizer.Processor,
	publishAll func(),
	onCycleDone func(epoch int64),
	log *diagnostics.Logger,
	tracer *diagnostics.Tracer,
) *Collector {
	return &Collector{
		registry:    registry,
		epoch:       epoch,
		barrier:     barrier,
		threads:     threads,
		alloc:       alloc,
		finalizer:   fin,
		publishAll:  publishAll,
		onCycleDone: onCycleDone,
		log:         log,
		tracer:      tracer,
	}
}

// Start launches the collector's dedicated goroutine. It returns
// immediately; call Stop to shut it down.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the shared epoch state to shut down and waits for the
// collector goroutine to exit.
func (c *Collector) Stop() {
	c.epoch.Shutdown()
	c.wg.Wait()
}

// Stats returns a snapshot of the most recently completed cycle.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Collector) run() {
	defer c.wg.Done()
	for {
		epoch, ok := c.epoch.AwaitRequest()
		if !ok {
			return
		}
		c.runCycle(epoch)
	}
}

// runCycle drives one full Initiating -> Marking -> Sweeping -> Finalizing
// pass for epoch, or yields immediately if another actor has already
// suspended the world for it (spec §4.5's Initiating tie-break).
func (c *Collector) runCycle(epoch int64) {
	trace := c.tracer.Begin(epoch)
	defer trace.Finish()

	if !c.barrier.TryBeginSuspend() {
		trace.Printf("yielded: world already suspended for this epoch")
		return
	}
	c.epoch.MarkStarted(epoch)
	trace.Printf("initiating")
	c.log.Collector(epoch, "initiating", "raising suspend flag")

	c.barrier.WaitUntilAllParked()
	trace.Printf("all mutators parked")

	swept, retained := c.markAndSweep(epoch, trace)

	ranAt := time.Now()
	c.mu.Lock()
	c.stats = Stats{LastEpoch: epoch, LastRanAt: ranAt, LastSwept: swept, LastRetained: retained}
	c.mu.Unlock()

	if c.onCycleDone != nil {
		c.onCycleDone(epoch)
	}

	c.epoch.MarkFinished(epoch)
	trace.Printf("finished: swept=%d retained=%d", swept, retained)
	c.log.Collector(epoch, "finished", fmt.Sprintf("swept=%d retained=%d objects (%s)", swept, retained, diagnostics.SinceGC(ranAt)))
}

// markAndSweep performs the stop-the-world mark and the concurrent sweep,
// returning the number of nodes swept into the finalizer queue and the
// number that survived.
func (c *Collector) markAndSweep(epoch int64, trace *diagnostics.EpochTrace) (swept, retained int) {
	// Marking: publish every mutator's producer queue first so freshly
	// allocated objects are reachable from the registry (spec §4.5).
	c.publishAll()

	var stack []object.NodeRef
	markRoot := func(ptr unsafe.Pointer) {
		if ptr == nil {
			return
		}
		ref := object.FromHeader((*object.Header)(ptr))
		if ref.GCColor() == object.Black {
			return
		}
		ref.SetGCColor(object.Black)
		stack = append(stack, ref)
	}

	c.threads.ForEachMutator(func(m external.Mutator) {
		m.Roots(markRoot)
	})
	trace.Printf("roots marked")

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		typ := ref.Type()
		typ.Trace(ref.HeaderPointer(), markRoot)
	}
	c.log.Collector(epoch, "marking", "mark complete")

	// Sweeping: take the registry lock, then release the suspend flag —
	// mutators may resume immediately, and since any publish waits on the
	// registry lock until this pass releases it, a node appended after this
	// point is never visited by this pass (spec §4.5).
	dead := object.NewFinalizerQueue(c.alloc)
	it := c.registry.LockForIteration()
	c.barrier.Resume()
	trace.Printf("world resumed, sweeping")

	for !it.Done() {
		ref := object.NodeRefFromNode(it.Node())
		if ref.GCColor() == object.Black {
			ref.SetGCColor(object.White)
			retained++
			it.Advance()
		} else {
			swept++
			it.MoveAndAdvance(dead.Consumer)
		}
	}
	it.Release()

	c.finalizer.ScheduleTasks(dead, epoch)
	return swept, retained
}
