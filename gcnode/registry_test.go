package gcnode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinygo-org/heapcore/allocator"
)

func TestRegistryWellFormedAfterPublish(t *testing.T) {
	alloc := allocator.New()
	reg := NewRegistry(alloc)
	defer reg.Close()

	p := NewProducer(reg, alloc)
	for i := 0; i < 1000; i++ {
		p.Insert(32)
	}
	require.Equal(t, 0, reg.Size(), "nothing published yet")

	p.Publish()
	require.Equal(t, 1000, reg.Size())

	assertWellFormed(t, reg)
}

func TestPublishEmptyProducerIsNoop(t *testing.T) {
	alloc := allocator.New()
	reg := NewRegistry(alloc)
	defer reg.Close()

	p := NewProducer(reg, alloc)
	p.Publish()
	require.Equal(t, 0, reg.Size())
}

func TestEraseAndAdvance(t *testing.T) {
	alloc := allocator.New()
	reg := NewRegistry(alloc)
	defer reg.Close()

	p := NewProducer(reg, alloc)
	for i := 0; i < 10; i++ {
		p.Insert(8)
	}
	p.Publish()

	it := reg.LockForIteration()
	count := 0
	for !it.Done() {
		count++
		if count%2 == 0 {
			n := it.EraseAndAdvance()
			reg.Free(n)
		} else {
			it.Advance()
		}
	}
	it.Release()

	require.Equal(t, 5, reg.Size())
	assertWellFormed(t, reg)
}

func TestMoveAndAdvance(t *testing.T) {
	alloc := allocator.New()
	reg := NewRegistry(alloc)
	defer reg.Close()

	p := NewProducer(reg, alloc)
	for i := 0; i < 6; i++ {
		p.Insert(8)
	}
	p.Publish()

	consumer := NewConsumer(alloc)
	it := reg.LockForIteration()
	for !it.Done() {
		it.MoveAndAdvance(consumer)
	}
	it.Release()

	require.Equal(t, 0, reg.Size())
	require.Equal(t, 6, consumer.Len())
	consumer.Close()
}

func TestLargeChainFreedIteratively(t *testing.T) {
	// Regression guard for spec §9: destruction must not be recursive.
	// A million-node chain freed recursively would blow the goroutine
	// stack; freed iteratively it just takes a while.
	alloc := allocator.New()
	reg := NewRegistry(alloc)

	p := NewProducer(reg, alloc)
	const n = 200000
	for i := 0; i < n; i++ {
		p.Insert(8)
	}
	p.Publish()
	require.Equal(t, n, reg.Size())

	reg.Close()
	require.Equal(t, 0, alloc.Live())
}

// assertWellFormed checks the registry invariants from spec §8: head == nil
// iff size == 0, tail.next == nil, and forward iteration visits exactly
// size nodes.
func assertWellFormed(t *testing.T, reg *Registry) {
	t.Helper()
	it := reg.LockForIteration()
	defer it.Release()

	count := 0
	var last *Node
	for n := it.Node(); n != nil; {
		count++
		last = n
		it.Advance()
		n = it.Node()
	}
	require.Equal(t, reg.chain.size, count)
	if count == 0 {
		require.Nil(t, reg.chain.head)
	} else {
		require.Same(t, reg.chain.tail, last)
		require.Nil(t, reg.chain.tail.next)
	}
}
