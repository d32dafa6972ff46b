// Package object is the typed façade over gcnode's untyped registry: it
// allocates object- and array-shaped nodes, recovers a node from any
// embedded-header pointer a mutator hands back, and produces the
// finalizer-queue consumer the collector sweeps dead nodes into.
package object

import (
	"unsafe"

	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/gcnode"
)

// ObjectAlign is the alignment every allocated record is rounded up to.
// Kept distinct from gcnode.DataAlign (spec §4.2 calls it out by its own
// name) even though the two constants currently agree, so a future change
// to one doesn't silently change the other.
const ObjectAlign = unsafe.Alignof(uintptr(0)) * 2

// recordPrefix is the GC metadata prepended to every record, ahead of the
// object or array header (spec §3's "heap object record" layout).
type recordPrefix struct {
	color Color
}

var prefixSize = alignUp(unsafe.Sizeof(recordPrefix{}), unsafe.Alignof(Header{}))

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// Header is the embedded object header mutators hold a pointer to. It is
// pointer-identical to the handle returned from CreateObject: callers never
// see the recordPrefix or a separate indirection, only this address.
type Header struct {
	Type external.TypeDescriptor
	Meta unsafe.Pointer // caller-defined metadata slot
}

// ArrayHeader shares Header as its first field so that any code holding a
// generic *Header can be pointed at an array's header too (spec §4.2:
// "record layouts must be kept byte-compatible across object/array
// variants"). Inline element storage follows immediately after ArrayHeader
// in memory.
type ArrayHeader struct {
	Header
	Count int32
}

var headerOffset = prefixSize

// prefixOf returns the recordPrefix preceding header within its node data
// region.
func prefixOf(header *Header) *recordPrefix {
	return (*recordPrefix)(unsafe.Add(unsafe.Pointer(header), -int(headerOffset)))
}

// objectDataSize computes the node data-region size needed for a non-array
// instance of t, per spec §4.2: prefix + instance size (which already
// includes the object header per the external contract in spec §6).
func objectDataSize(t external.TypeDescriptor) uintptr {
	if t.IsArray() {
		panic("heapcore: objectDataSize called with an array type descriptor")
	}
	return alignUp(headerOffset+uintptr(t.InstanceSize()), ObjectAlign)
}

// arrayDataSize computes the node data-region size needed for count
// elements of array type t, per spec §6: -instanceSize*count + sizeof(array
// header), plus the leading recordPrefix.
func arrayDataSize(t external.TypeDescriptor, count int32) uintptr {
	if !t.IsArray() {
		panic("heapcore: arrayDataSize called with a non-array type descriptor")
	}
	elemSize := uintptr(-t.InstanceSize())
	body := elemSize * uintptr(count)
	total := headerOffset + unsafe.Sizeof(ArrayHeader{}) + body
	return alignUp(total, ObjectAlign)
}

// headerFromNode recovers the embedded Header for an object stored at n's data
// region.
func headerFromNode(n *gcnode.Node) *Header {
	return (*Header)(unsafe.Add(n.Data(), int(headerOffset)))
}
