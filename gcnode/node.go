// Package gcnode implements the registry storage described in the spec:
// an intrusive singly-linked chain of nodes, each carrying a fixed header
// plus a variable-sized trailing data region. Producers append to
// thread-local sublists; publishing splices a sublist onto the global
// registry's tail in O(1) under a short-held spinlock. The collector
// detaches nodes during sweep into a consumer chain.
//
// A node never moves. The address of its data region is a stable identity
// for the object it holds for the entire lifetime of that object.
package gcnode

import (
	"unsafe"

	"github.com/tinygo-org/heapcore/external"
)

// DataAlign is the alignment every node's trailing data region is rounded
// up to, regardless of the caller's requested alignment, so that the
// node header + data region can always be carved out of one allocation.
const DataAlign = unsafe.Alignof(uintptr(0)) * 2

// Node is a registry entry. The data region immediately follows the
// header in memory; Data() recovers it with pointer arithmetic rather
// than a separate indirection, so a node's data pointer never ages out of
// sync with the node itself.
//
// next is exclusively owned by the predecessor in the chain (the registry,
// a producer, or a consumer) — never by two chains at once.
type Node struct {
	next *Node
	size uintptr
}

// headerSize is the size of the fixed Node header, padded out to DataAlign
// so the data region that follows is itself DataAlign-aligned.
var headerSize = alignUp(unsafe.Sizeof(Node{}), DataAlign)

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// Data returns a pointer to n's trailing data region.
func (n *Node) Data() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(n), headerSize)
}

// Size returns the size in bytes of n's data region, as requested at
// Insert time (after alignment rounding).
func (n *Node) Size() uintptr {
	return n.size
}

// FromData recovers the owning Node from a pointer returned by Data, by
// subtracting the fixed header offset. ptr must point at (or inside, for
// offsets the caller tracks separately) a data region obtained from a live
// Node; calling this on an arbitrary pointer is undefined.
func FromData(ptr unsafe.Pointer) *Node {
	return (*Node)(unsafe.Add(ptr, -int(headerSize)))
}

// allocNode carves a new node of the given data size out of alloc, aborting
// the process if the allocator is exhausted — per spec §7, allocator
// exhaustion at this layer has no recovery path.
func allocNode(alloc external.Allocator, dataSize uintptr) *Node {
	total := headerSize + alignUp(dataSize, DataAlign)
	align := unsafe.Alignof(Node{})
	if DataAlign > align {
		align = DataAlign
	}
	ptr := alloc.Alloc(total, align)
	if ptr == nil {
		panic("heapcore: out of memory allocating heap node")
	}
	n := (*Node)(ptr)
	n.next = nil
	n.size = alignUp(dataSize, DataAlign)
	recordChecksum(n)
	return n
}

// Free releases a single detached node back to alloc, verifying its debug
// checksum first. Exported for callers outside gcnode (the object
// factory's finalizer queue) that hold a raw *Node obtained from a
// Consumer rather than from a Registry.
func Free(alloc external.Allocator, n *Node) {
	verifyChecksum(n)
	alloc.Free(unsafe.Pointer(n))
}

// freeChain iteratively frees every node in a chain starting at head,
// releasing each node back to alloc before following its next link. This
// must never be written as a recursive walk: a chain can hold millions of
// nodes and recursive destruction would blow the stack (spec §9).
func freeChain(alloc external.Allocator, head *Node) {
	for head != nil {
		verifyChecksum(head)
		next := head.next
		alloc.Free(unsafe.Pointer(head))
		head = next
	}
}
