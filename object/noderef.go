package object

import (
	"unsafe"

	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/gcnode"
)

// NodeRef is a handle recovered from an object (or array) header pointer
// that exposes the surrounding GC metadata. It does not own the node: it is
// a stable weak reference, valid exactly as long as the object it points
// at was reachable at the start of the most recent mark (spec §3's
// ownership summary).
type NodeRef struct {
	node *gcnode.Node
}

// FromHeader recovers the NodeRef for an object allocated through
// CreateObject. Pre: handle points at the embedded Header of a heap
// object — passing an off-heap pointer is undefined (callers are expected
// to tag off-heap statics distinctly, per spec §4.2).
func FromHeader(handle *Header) NodeRef {
	base := unsafe.Add(unsafe.Pointer(handle), -int(headerOffset))
	return NodeRef{node: gcnode.FromData(base)}
}

// FromArrayHeader recovers the NodeRef for an array allocated through
// CreateArray.
func FromArrayHeader(handle *ArrayHeader) NodeRef {
	return FromHeader(&handle.Header)
}

// Node returns the underlying gcnode.Node, for collector-internal use
// (sweep iteration, move-to-finalizer-queue).
func (r NodeRef) Node() *gcnode.Node {
	return r.node
}

// GCColor returns the object's current mark color.
func (r NodeRef) GCColor() Color {
	return prefixOf(headerFromNode(r.node)).color
}

// SetGCColor sets the object's mark color. Only ever called by the
// collector goroutine.
func (r NodeRef) SetGCColor(c Color) {
	prefixOf(headerFromNode(r.node)).color = c
}

// IsArray reports whether the referenced record is an array.
func (r NodeRef) IsArray() bool {
	return headerFromNode(r.node).Type.IsArray()
}

// AsObject returns the embedded Header, asserting (in debug builds, via
// IsArray) that this record is not an array.
func (r NodeRef) AsObject() *Header {
	if DebugAsserts && r.IsArray() {
		panic("heapcore: AsObject called on an array record")
	}
	return headerFromNode(r.node)
}

// AsArray returns the embedded ArrayHeader, asserting that this record is
// an array.
func (r NodeRef) AsArray() *ArrayHeader {
	if DebugAsserts && !r.IsArray() {
		panic("heapcore: AsArray called on a non-array record")
	}
	return (*ArrayHeader)(unsafe.Pointer(headerFromNode(r.node)))
}

// Type returns the record's type descriptor.
func (r NodeRef) Type() external.TypeDescriptor {
	return headerFromNode(r.node).Type
}

// HeaderPointer returns the embedded header's address regardless of
// whether the record is an object or an array, for callers that only need
// a generic address to hand to TypeDescriptor.Trace or Finalize — both
// operate on the header address by contract, and object/array headers are
// layout-compatible prefixes (spec §4.2), so no kind check is needed here.
func (r NodeRef) HeaderPointer() unsafe.Pointer {
	return unsafe.Pointer(headerFromNode(r.node))
}

// NodeRefFromNode wraps an already-located node, for code (collector sweep)
// that obtained the node directly from a gcnode.Iterable rather than from a
// mutator-visible handle.
func NodeRefFromNode(n *gcnode.Node) NodeRef {
	return NodeRef{node: n}
}

// DebugAsserts gates the array/object kind assertions called out in spec §7
// as debug-mode assertions rather than production-path checks.
var DebugAsserts = false
