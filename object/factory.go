package object

import (
	"unsafe"

	"github.com/tinygo-org/heapcore/external"
	"github.com/tinygo-org/heapcore/gcnode"
)

// ThreadQueue is the per-mutator-thread façade over a gcnode.Producer: it
// knows how to size and initialize object/array records, where the untyped
// Producer only knows how to carve out bytes.
type ThreadQueue struct {
	producer *gcnode.Producer
}

// NewThreadQueue wraps producer with the typed allocation operations.
func NewThreadQueue(producer *gcnode.Producer) *ThreadQueue {
	return &ThreadQueue{producer: producer}
}

// CreateObject allocates a non-array instance of t, initializes its record
// prefix (color White) and header (Type = t, Meta = nil), and returns a
// pointer to the embedded Header. Pre: !t.IsArray().
func (q *ThreadQueue) CreateObject(t external.TypeDescriptor) *Header {
	if t.IsArray() {
		panic("heapcore: CreateObject called with an array type descriptor")
	}
	n := q.producer.Insert(objectDataSize(t))
	prefix := (*recordPrefix)(n.Data())
	prefix.color = White
	h := headerFromNode(n)
	h.Type = t
	h.Meta = nil
	return h
}

// CreateArray allocates an array instance of t with count elements,
// initializes its record prefix, header, and element count, and returns a
// pointer to the embedded ArrayHeader. Pre: t.IsArray().
func (q *ThreadQueue) CreateArray(t external.TypeDescriptor, count int32) *ArrayHeader {
	if !t.IsArray() {
		panic("heapcore: CreateArray called with a non-array type descriptor")
	}
	if count < 0 {
		panic("heapcore: negative array count")
	}
	n := q.producer.Insert(arrayDataSize(t, count))
	prefix := (*recordPrefix)(n.Data())
	prefix.color = White
	h := (*ArrayHeader)(unsafe.Pointer(headerFromNode(n)))
	h.Type = t
	h.Meta = nil
	h.Count = count
	return h
}

// Publish splices every record created so far on this thread queue onto the
// shared registry, making them visible to the collector.
func (q *ThreadQueue) Publish() {
	q.producer.Publish()
}

// Close publishes and releases the underlying producer. Callers should
// defer Close on mutator-thread teardown (spec §9's auto-publish note).
func (q *ThreadQueue) Close() {
	q.producer.Close()
}

// ElementPointer returns a pointer to element i of arr. Callers are
// responsible for bounds-checking against arr.Count; this is the inline
// storage access the spec describes arrays appending after the header.
func ElementPointer(arr *ArrayHeader, elemSize uintptr, i int32) unsafe.Pointer {
	base := unsafe.Add(unsafe.Pointer(arr), int(unsafe.Sizeof(ArrayHeader{})))
	return unsafe.Add(base, int(uintptr(i)*elemSize))
}
