// Package safepoint implements the suspend/resume protocol and the four
// mutator-facing poll points from spec §4.4: function prologue, loop
// back-edge, exception unwind, and allocation. Suspension happens only at
// these four entries (or while a mutator is blocked in one of the
// ScheduleAndWaitFullGC* calls) — no other operation in heapcore suspends
// a mutator.
package safepoint

import "sync"

// Barrier is the global suspend/resume flag the collector uses to stop all
// mutators. A mutator's poll call checks the flag under the barrier's
// mutex; if set, it parks until the collector releases it.
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	suspend  bool
	suspendedBy bool // true while a Suspend is in progress, guards re-entrant Suspend calls
	live     int
	parked   int
}

// NewBarrier creates a barrier with no live mutators registered.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Register adds a mutator to the live count that WaitUntilAllParked waits on.
func (b *Barrier) Register() {
	b.mu.Lock()
	b.live++
	b.mu.Unlock()
}

// Unregister removes a mutator from the live count and wakes a collector
// blocked in WaitUntilAllParked so it re-checks against the smaller count.
// The parked count is left unchanged, so a mutator must not unregister
// while it is parked.
func (b *Barrier) Unregister() {
	b.mu.Lock()
	b.live--
	b.mu.Unlock()
	b.cond.Broadcast()
}

// TryBeginSuspend raises the suspend flag and reports true, or reports
// false without changing anything if a suspend is already in progress —
// the tie-break from spec §4.5's Initiating state ("someone else did it").
func (b *Barrier) TryBeginSuspend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.suspendedBy {
		return false
	}
	b.suspendedBy = true
	b.suspend = true
	return true
}

// WaitUntilAllParked blocks until every registered mutator has observed the
// suspend flag and parked.
func (b *Barrier) WaitUntilAllParked() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.parked < b.live {
		b.cond.Wait()
	}
}

// Resume releases every parked mutator and clears the suspend flag.
func (b *Barrier) Resume() {
	b.mu.Lock()
	b.suspend = false
	b.suspendedBy = false
	b.mu.Unlock()
	b.cond.Broadcast()
}

// poll is called from the four mutator entry points. If the suspend flag is
// set, it parks the calling goroutine until Resume.
func (b *Barrier) poll() {
	b.mu.Lock()
	if !b.suspend {
		b.mu.Unlock()
		return
	}
	b.parked++
	b.cond.Broadcast() // let a waiting WaitUntilAllParked re-check the count
	for b.suspend {
		b.cond.Wait()
	}
	b.parked--
	b.mu.Unlock()
}
