package gcnode

import (
	"github.com/tinygo-org/heapcore/external"
)

// Registry is the global chain of nodes. It is the single source of truth
// for "every heap-allocated managed object" (spec §1): every node a
// Producer creates eventually lands here via Publish, and every node
// leaves here only through sweep.
type Registry struct {
	lock  spinlock
	chain chain
	alloc external.Allocator
}

// NewRegistry creates an empty registry backed by alloc.
func NewRegistry(alloc external.Allocator) *Registry {
	return &Registry{alloc: alloc}
}

// Size returns the current number of nodes in the registry. Intended for
// diagnostics and tests; the value can be stale the instant it's read
// since producers publish concurrently.
func (r *Registry) Size() int {
	r.lock.Lock()
	n := r.chain.size
	r.lock.Unlock()
	return n
}

// publish splices src onto the registry's tail under the lock and empties
// src. Publishing an empty chain takes no lock, per spec §4.1.
func (r *Registry) publish(src *chain) {
	if src.empty() {
		return
	}
	r.lock.Lock()
	r.chain.spliceFrom(src)
	r.lock.Unlock()
}

// Iterable is the locked iteration handle returned by LockForIteration. The
// registry's lock is held for the handle's entire lifetime, so callers must
// call Release (or use the handle inside a bounded loop) promptly — holding
// it across allocation or tracing would violate the concurrency model in
// spec §5.
type Iterable struct {
	r    *Registry
	prev *Node // predecessor of cur, nil if cur is the head
	cur  *Node
}

// LockForIteration acquires the registry's lock and returns a handle
// positioned at the head of the chain.
func (r *Registry) LockForIteration() *Iterable {
	r.lock.Lock()
	return &Iterable{r: r, cur: r.chain.head}
}

// Release unlocks the registry. Must be called exactly once per Iterable.
func (it *Iterable) Release() {
	it.r.lock.Unlock()
}

// Done reports whether iteration has reached the end of the chain.
func (it *Iterable) Done() bool {
	return it.cur == nil
}

// Node returns the node currently positioned at, or nil if Done.
func (it *Iterable) Node() *Node {
	return it.cur
}

// Advance moves to the next node without mutating the chain.
func (it *Iterable) Advance() {
	it.prev = it.cur
	it.cur = it.cur.next
}

// EraseAndAdvance unlinks the current node from the registry, handing
// ownership to the caller (who must deallocate it, typically via
// Registry.Free), and advances to the successor. O(1): the iterator
// remembers the predecessor so no rescan is needed (spec §9).
func (it *Iterable) EraseAndAdvance() *Node {
	erased := it.cur
	next := erased.next
	r := it.r
	if it.prev == nil {
		r.chain.head = next
	} else {
		it.prev.next = next
	}
	if erased == r.chain.tail {
		r.chain.tail = it.prev
	}
	r.chain.size--
	erased.next = nil
	it.cur = next
	return erased
}

// MoveAndAdvance unlinks the current node from the registry and appends it
// to consumer's chain in O(1), then advances to the successor.
func (it *Iterable) MoveAndAdvance(consumer *Consumer) {
	n := it.EraseAndAdvance()
	consumer.chain.append(n)
}

// Free releases a node detached via EraseAndAdvance back to the registry's
// allocator.
func (r *Registry) Free(n *Node) {
	Free(r.alloc, n)
}

// Close frees every remaining node in the registry iteratively. Intended
// for process/test teardown, not for normal operation.
func (r *Registry) Close() {
	r.lock.Lock()
	head := r.chain.head
	r.chain.reset()
	r.lock.Unlock()
	freeChain(r.alloc, head)
}
