package safepoint

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeScheduler is a minimal external.Scheduler stub that lets a test force
// ShouldTrigger's answer and count calls into NoteWork/NoteAllocation/NoteOOM.
type fakeScheduler struct {
	trigger    atomic.Bool
	workCalls  atomic.Int64
	allocCalls atomic.Int64
	oomCalls   atomic.Int64
}

func (s *fakeScheduler) NoteWork(int64)         { s.workCalls.Add(1) }
func (s *fakeScheduler) NoteAllocation(uintptr) { s.allocCalls.Add(1) }
func (s *fakeScheduler) NoteOOM(uintptr)        { s.oomCalls.Add(1) }
func (s *fakeScheduler) ShouldTrigger() bool    { return s.trigger.Load() }
func (s *fakeScheduler) Epoch() int64           { return 0 }

// fakeTrigger is a minimal Triggerer stub recording how many times a
// collection was requested and letting the test control when WaitForFinish
// returns.
type fakeTrigger struct {
	requests atomic.Int64
	finished chan struct{}
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{finished: make(chan struct{})}
}

func (t *fakeTrigger) RequestCollection() (int64, bool) {
	t.requests.Add(1)
	return 1, false
}

func (t *fakeTrigger) WaitForFinish(int64) {
	<-t.finished
}

type fakeFinalizerWaiter struct {
	waited atomic.Int64
}

func (w *fakeFinalizerWaiter) WaitForEpoch(int64) {
	w.waited.Add(1)
}

func TestPollPointsTriggerCollectionOnPressure(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	close(trig.finished)
	m := NewMutator(barrier, sched, trig, &fakeFinalizerWaiter{})
	defer m.Close()

	m.OnFunctionPrologue(1)
	require.Equal(t, int64(0), trig.requests.Load(), "no trigger below threshold")

	sched.trigger.Store(true)
	m.OnLoopBackedge(1)
	require.Equal(t, int64(1), trig.requests.Load())

	m.OnExceptionUnwind(1)
	require.Equal(t, int64(2), trig.requests.Load())
}

func TestOnAllocationTriggersOnPressure(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	close(trig.finished)
	m := NewMutator(barrier, sched, trig, &fakeFinalizerWaiter{})
	defer m.Close()

	m.OnAllocation(64)
	require.Equal(t, int64(1), sched.allocCalls.Load())
	require.Equal(t, int64(0), trig.requests.Load())

	sched.trigger.Store(true)
	m.OnAllocation(64)
	require.Equal(t, int64(1), trig.requests.Load())
}

func TestOnOOMAlwaysRequestsCollection(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	close(trig.finished)
	m := NewMutator(barrier, sched, trig, &fakeFinalizerWaiter{})
	defer m.Close()

	m.OnOOM(1024)
	require.Equal(t, int64(1), sched.oomCalls.Load())
	require.Equal(t, int64(1), trig.requests.Load())
}

func TestScheduleAndWaitFullGCBlocksUntilFinished(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	m := NewMutator(barrier, sched, trig, &fakeFinalizerWaiter{})
	defer m.Close()

	done := make(chan struct{})
	go func() {
		m.ScheduleAndWaitFullGC()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("ScheduleAndWaitFullGC returned before the collection finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(trig.finished)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ScheduleAndWaitFullGC never returned after WaitForFinish unblocked")
	}
}

func TestScheduleAndWaitFullGCWithFinalizersAlsoWaitsOnFinalizer(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	close(trig.finished)
	waiter := &fakeFinalizerWaiter{}
	m := NewMutator(barrier, sched, trig, waiter)
	defer m.Close()

	m.ScheduleAndWaitFullGCWithFinalizers()
	require.Equal(t, int64(1), waiter.waited.Load())
}

func TestPollParksWhileBarrierSuspended(t *testing.T) {
	barrier := NewBarrier()
	sched := &fakeScheduler{}
	trig := newFakeTrigger()
	close(trig.finished)
	m := NewMutator(barrier, sched, trig, &fakeFinalizerWaiter{})
	defer m.Close()

	require.True(t, barrier.TryBeginSuspend())
	parked := make(chan struct{})
	go func() {
		m.OnFunctionPrologue(1)
		close(parked)
	}()

	barrier.WaitUntilAllParked()
	select {
	case <-parked:
		t.Fatal("poll returned before Resume")
	default:
	}

	barrier.Resume()
	select {
	case <-parked:
	case <-time.After(time.Second):
		t.Fatal("poll never returned after Resume")
	}
}
