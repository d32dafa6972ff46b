// Package finalizer implements the finalizer processor from spec §4.6: a
// single worker goroutine that receives batches of dead-object queues
// tagged with epochs, runs each dead object's finalization callback, and
// reports when an epoch's queue has fully drained.
package finalizer

import (
	"sync"

	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/object"
)

// Processor owns the pending-finalization queue and its worker goroutine.
// The worker is started lazily on the first ScheduleTasks call and exits
// once StopFinalizerThread has been called and the queue has drained.
type Processor struct {
	alloc external.Allocator

	mu              sync.Mutex
	cond            *sync.Cond
	pending         *object.FinalizerQueue
	latestEpoch     int64
	doneEpoch       int64
	running         bool
	newTasksAllowed bool
	stopRequested   bool
	onEpochDone     func(epoch int64)

	wg sync.WaitGroup
}

// New creates a Processor backed by alloc. onEpochDone may be nil; the
// contract (spec §4.6) is that it will eventually be called for the latest
// epoch observed once the queue drains, not for every epoch — callers that
// want every epoch reported must track that themselves.
func New(alloc external.Allocator, onEpochDone func(epoch int64)) *Processor {
	p := &Processor{
		alloc:           alloc,
		pending:         object.NewFinalizerQueue(alloc),
		newTasksAllowed: true,
		onEpochDone:     onEpochDone,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ScheduleTasks splices tasks onto the pending queue, records epoch as the
// most recent scheduled, wakes the worker, and starts it if it isn't
// running. If StopFinalizerThread has already been called, the task is
// silently dropped (spec §7: the `newTasksAllowed = false` guard supports
// clean shutdown without an error path).
func (p *Processor) ScheduleTasks(tasks *object.FinalizerQueue, epoch int64) {
	p.mu.Lock()
	if !p.newTasksAllowed {
		p.mu.Unlock()
		tasks.Close()
		return
	}
	tasks.Drain(p.pending.Consumer)
	if epoch > p.latestEpoch {
		p.latestEpoch = epoch
	}
	startWorker := !p.running
	if startWorker {
		p.running = true
		p.wg.Add(1)
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	if startWorker {
		go p.runWorker()
	}
}

// StopFinalizerThread disallows further tasks and wakes the worker so it
// can observe the stop request. If wait is true, it blocks until the
// worker goroutine has actually exited.
func (p *Processor) StopFinalizerThread(wait bool) {
	p.mu.Lock()
	p.newTasksAllowed = false
	p.stopRequested = true
	p.cond.Broadcast()
	p.mu.Unlock()

	if wait {
		p.wg.Wait()
	}
}

// IsRunning reports whether the worker goroutine is currently alive.
// Observable for tests (spec §4.6).
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// WaitForEpoch blocks until the finalizer processor has drained an epoch
// >= epoch, i.e. until onEpochDone has conceptually fired for it. Used by
// safepoint.Mutator.ScheduleAndWaitFullGCWithFinalizers.
func (p *Processor) WaitForEpoch(epoch int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.doneEpoch < epoch && !(p.stopRequested && p.pending.Empty() && !p.running) {
		p.cond.Wait()
	}
}

// runWorker is the finalizer thread's main loop. It waits until the
// pending queue is non-empty or shutdown is requested, atomically takes
// the entire queue, drops the mutex while running finalizers (so
// ScheduleTasks never blocks on a finalizer callback), and reports epoch
// completion once the queue is empty again with nothing new queued.
func (p *Processor) runWorker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.pending.Empty() && p.doneEpoch >= p.latestEpoch && !p.stopRequested {
			p.cond.Wait()
		}
		if p.pending.Empty() && p.doneEpoch < p.latestEpoch {
			// An epoch whose sweep found nothing to finalize: it is
			// drained as soon as it is scheduled.
			p.doneEpoch = p.latestEpoch
			callbackEpoch, callback := p.doneEpoch, p.onEpochDone
			p.cond.Broadcast()
			p.mu.Unlock()
			if callback != nil {
				callback(callbackEpoch)
			}
			continue
		}
		if p.pending.Empty() {
			// Stop requested and nothing left to do.
			p.running = false
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}

		batch := object.NewFinalizerQueue(p.alloc)
		p.pending.Drain(batch.Consumer)
		p.mu.Unlock()

		batch.RunFinalizers()

		p.mu.Lock()
		var callback func(int64)
		var callbackEpoch int64
		if p.pending.Empty() {
			p.doneEpoch = p.latestEpoch
			callbackEpoch = p.doneEpoch
			callback = p.onEpochDone
		}
		p.cond.Broadcast()
		p.mu.Unlock()

		if callback != nil {
			callback(callbackEpoch)
		}
	}
}
