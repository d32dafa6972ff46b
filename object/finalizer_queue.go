package object

import (
	"unsafe"

	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/gcnode"
)

// FinalizerQueue is the typed view of a gcnode.Consumer the factory hands
// to the collector during sweep and, from there, to the finalizer
// processor. It exists so the finalizer worker can call into each dead
// object's TypeDescriptor.Finalize without reaching back into gcnode's
// untyped Node.
type FinalizerQueue struct {
	*gcnode.Consumer
	alloc external.Allocator
}

// NewFinalizerQueue wraps an empty gcnode.Consumer backed by alloc.
func NewFinalizerQueue(alloc external.Allocator) *FinalizerQueue {
	return &FinalizerQueue{Consumer: gcnode.NewConsumer(alloc), alloc: alloc}
}

// RunFinalizers runs TypeDescriptor.Finalize for every node currently held
// and then releases each node's memory. It does not lock anything: callers
// (the finalizer worker) are expected to have already taken exclusive
// ownership of this queue.
func (q *FinalizerQueue) RunFinalizers() {
	for n := q.Take(); n != nil; n = q.Take() {
		ref := NodeRefFromNode(n)
		h := headerFromNode(n)
		if ref.IsArray() {
			h.Type.Finalize(unsafe.Pointer((*ArrayHeader)(unsafe.Pointer(h))))
		} else {
			h.Type.Finalize(unsafe.Pointer(h))
		}
		gcnode.Free(q.alloc, n)
	}
}
