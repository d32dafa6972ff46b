// Package gcstate implements the GC state holder from spec §4.3: a
// monotonically increasing epoch counter with three semantic markers per
// value — requested, started, finished — and the coalescing rule that
// lets concurrent collection requests pile onto one running epoch instead
// of each triggering their own cycle.
package gcstate

import "sync"

// EpochState coordinates one collector goroutine against any number of
// mutator goroutines requesting collections. All three per-epoch markers
// share a single mutex and condition variable: the critical sections here
// are a handful of integer compares, so splitting into three separate
// condition variables (one per marker, as the spec's prose enumerates them)
// would only add bookkeeping without reducing contention.
type EpochState struct {
	mu   sync.Mutex
	cond *sync.Cond

	current  int64 // highest epoch ever requested
	pending  bool  // true from request until that epoch finishes
	started  int64 // highest epoch the collector has started
	finished int64 // highest epoch the collector has finished

	shutdown bool
}

// New creates an EpochState at epoch 0, with nothing requested, started, or
// finished yet.
func New() *EpochState {
	s := &EpochState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// RequestCollection bumps the epoch counter if no collection is already
// pending, and returns the epoch the caller should wait on. If a
// collection is already pending, the request coalesces into it: coalesced
// reports true, and epoch is the epoch already in flight (spec §4.3, spec
// §8 "coalescing" property).
func (s *EpochState) RequestCollection() (epoch int64, coalesced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return s.current, true
	}
	s.current++
	s.pending = true
	s.cond.Broadcast()
	return s.current, false
}

// WaitForFinish blocks until finished(epoch) has been signaled, i.e. until
// some collection whose epoch is >= epoch has completed.
func (s *EpochState) WaitForFinish(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.finished < epoch && !s.shutdown {
		s.cond.Wait()
	}
}

// AwaitRequest blocks the collector until a new epoch has been requested
// (current > started), then returns that epoch. ok is false if the state
// has been shut down while waiting.
func (s *EpochState) AwaitRequest() (epoch int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.started >= s.current && !s.shutdown {
		s.cond.Wait()
	}
	if s.shutdown {
		return 0, false
	}
	return s.current, true
}

// MarkStarted records that epoch has entered marking and wakes any waiters
// (diagnostics code waiting on "started", mainly).
func (s *EpochState) MarkStarted(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch > s.started {
		s.started = epoch
	}
	s.cond.Broadcast()
}

// MarkFinished records that epoch has completed, clears the pending flag so
// the next RequestCollection starts a fresh epoch instead of coalescing,
// and wakes every WaitForFinish caller whose epoch has now been reached.
func (s *EpochState) MarkFinished(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch > s.finished {
		s.finished = epoch
	}
	s.pending = false
	s.cond.Broadcast()
}

// Shutdown signals the sentinel causing AwaitRequest to return ok == false
// and any blocked WaitForFinish callers to return immediately, letting
// worker goroutines exit cleanly.
func (s *EpochState) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	s.cond.Broadcast()
}

// Snapshot returns the current (requested, started, finished) triple, for
// diagnostics.
func (s *EpochState) Snapshot() (current, started, finished int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.started, s.finished
}
