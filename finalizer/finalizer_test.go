package finalizer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/heapcore/allocator"
	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/gcnode"
	"github.com/tinygo-org/heapcore/object"
)

type countingType struct {
	finalized *atomic.Int32
}

func (t *countingType) IsArray() bool       { return false }
func (t *countingType) InstanceSize() int32 { return int32(unsafe.Sizeof(object.Header{})) }
func (t *countingType) Trace(unsafe.Pointer, func(unsafe.Pointer)) {}
func (t *countingType) Finalize(unsafe.Pointer) {
	t.finalized.Add(1)
}

func makeDeadNodes(t *testing.T, alloc external.Allocator, n int, counter *atomic.Int32) *object.FinalizerQueue {
	t.Helper()
	reg := gcnode.NewRegistry(alloc)
	producer := gcnode.NewProducer(reg, alloc)
	q := object.NewThreadQueue(producer)
	typ := &countingType{finalized: counter}
	for i := 0; i < n; i++ {
		q.CreateObject(typ)
	}
	q.Publish()

	queue := object.NewFinalizerQueue(alloc)
	it := reg.LockForIteration()
	for !it.Done() {
		it.MoveAndAdvance(queue.Consumer)
	}
	it.Release()
	return queue
}

func TestScheduleTasksRunsFinalizersAndReportsEpoch(t *testing.T) {
	alloc := allocator.New()
	var counter atomic.Int32
	var gotEpoch atomic.Int64
	done := make(chan struct{})

	p := New(alloc, func(epoch int64) {
		gotEpoch.Store(epoch)
		close(done)
	})

	queue := makeDeadNodes(t, alloc, 500, &counter)
	p.ScheduleTasks(queue, 1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("epoch callback never fired")
	}

	require.Equal(t, int32(500), counter.Load())
	require.Equal(t, int64(1), gotEpoch.Load())
	p.WaitForEpoch(1)
}

func TestStopFinalizerThreadDropsLateTasks(t *testing.T) {
	alloc := allocator.New()
	var counter atomic.Int32

	p := New(alloc, nil)
	p.StopFinalizerThread(true)
	require.False(t, p.IsRunning())

	queue := makeDeadNodes(t, alloc, 10, &counter)
	p.ScheduleTasks(queue, 2)

	// Give any (incorrectly started) worker a chance to run.
	time.Sleep(20 * time.Millisecond)
	require.False(t, p.IsRunning(), "finalizer thread must not restart after stop")
	require.Equal(t, int32(0), counter.Load(), "dropped tasks must not run finalizers")
}

func TestConcurrentScheduleTasksAllDrain(t *testing.T) {
	alloc := allocator.New()
	var counter atomic.Int32
	p := New(alloc, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		epoch := int64(i + 1)
		go func() {
			defer wg.Done()
			q := makeDeadNodes(t, alloc, 20, &counter)
			p.ScheduleTasks(q, epoch)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return counter.Load() == 100
	}, time.Second, time.Millisecond)

	p.WaitForEpoch(5)
}
