package safepoint

import "github.com/tinygo-org/heapcore/external"

// Triggerer is the collector-side operation a mutator calls into to request
// a collection. Implemented by gcstate.EpochState; kept as a narrow
// interface here so safepoint does not need to import the collector
// package (which itself depends on safepoint for the suspend barrier).
type Triggerer interface {
	RequestCollection() (epoch int64, coalesced bool)
	WaitForFinish(epoch int64)
}

// FinalizerWaiter lets ScheduleAndWaitFullGCWithFinalizers additionally
// block until the finalizer processor has drained a given epoch.
type FinalizerWaiter interface {
	WaitForEpoch(epoch int64)
}

// Mutator is the per-thread safepoint façade a single mutator goroutine
// owns. It polls the shared Barrier, forwards work/allocation hints to the
// external.Scheduler, and exposes the two user-callable blocking GC
// requests from spec §4.4.
type Mutator struct {
	barrier   *Barrier
	scheduler external.Scheduler
	trigger   Triggerer
	finalizer FinalizerWaiter
}

// NewMutator registers a new mutator against barrier and returns its
// façade. Callers must call Close when the mutator thread tears down.
func NewMutator(barrier *Barrier, scheduler external.Scheduler, trigger Triggerer, finalizer FinalizerWaiter) *Mutator {
	barrier.Register()
	return &Mutator{barrier: barrier, scheduler: scheduler, trigger: trigger, finalizer: finalizer}
}

// Close unregisters the mutator from the barrier. Safe to call once, on
// thread teardown.
func (m *Mutator) Close() {
	m.barrier.Unregister()
}

// pollAndTrigger is shared by the three weighted poll points: park if
// suspended, note the work, and kick off a non-blocking collection request
// if the scheduler's policy says pressure has crossed its threshold.
func (m *Mutator) pollAndTrigger(weight int64) {
	m.barrier.poll()
	m.scheduler.NoteWork(weight)
	if m.scheduler.ShouldTrigger() {
		m.trigger.RequestCollection()
	}
}

// OnFunctionPrologue is the fast-path poll at function entry.
func (m *Mutator) OnFunctionPrologue(weight int64) {
	m.pollAndTrigger(weight)
}

// OnLoopBackedge is the fast-path poll at a loop back-edge.
func (m *Mutator) OnLoopBackedge(weight int64) {
	m.pollAndTrigger(weight)
}

// OnExceptionUnwind is the fast-path poll during exception/panic unwind.
func (m *Mutator) OnExceptionUnwind(weight int64) {
	m.pollAndTrigger(weight)
}

// OnAllocation must be called just before every managed-heap allocation
// (spec §9: "every allocation be preceded by onAllocation(size)"). It
// parks if suspended, hands the scheduler a size hint, and may trigger a
// collection on heap-pressure policy.
func (m *Mutator) OnAllocation(size uintptr) {
	m.barrier.poll()
	m.scheduler.NoteAllocation(size)
	if m.scheduler.ShouldTrigger() {
		m.trigger.RequestCollection()
	}
}

// OnOOM is the informational hook from spec §7: the allocator collaborator
// calls this when it cannot satisfy a request, and the scheduler may use it
// to request an emergency collection before the next allocation attempt.
// OnOOM also requests a collection itself, without waiting for it.
// This does not itself recover the failed allocation; the caller still
// aborts if retrying after the emergency collection also fails.
func (m *Mutator) OnOOM(size uintptr) {
	m.scheduler.NoteOOM(size)
	m.trigger.RequestCollection()
}

// ScheduleAndWaitFullGC requests a collection and blocks until a collection
// whose epoch is >= the requested one has completed.
func (m *Mutator) ScheduleAndWaitFullGC() {
	epoch, _ := m.trigger.RequestCollection()
	m.parkedWhile(func() { m.trigger.WaitForFinish(epoch) })
}

// ScheduleAndWaitFullGCWithFinalizers additionally waits for the finalizer
// processor to drain the requested epoch.
func (m *Mutator) ScheduleAndWaitFullGCWithFinalizers() {
	epoch, _ := m.trigger.RequestCollection()
	m.parkedWhile(func() {
		m.trigger.WaitForFinish(epoch)
		m.finalizer.WaitForEpoch(epoch)
	})
}

// parkedWhile counts the mutator as parked at a safepoint while wait runs,
// so the collector's WaitUntilAllParked does not wait on a mutator that is
// itself blocked on a collection. Like poll, it leaves the parked count
// only once no suspend is in progress.
func (m *Mutator) parkedWhile(wait func()) {
	b := m.barrier
	b.mu.Lock()
	b.parked++
	b.mu.Unlock()
	b.cond.Broadcast()
	wait()
	b.mu.Lock()
	for b.suspend {
		b.cond.Wait()
	}
	b.parked--
	b.mu.Unlock()
}
