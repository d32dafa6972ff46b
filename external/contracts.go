// Package external declares the interfaces heapcore consumes from the
// rest of a language runtime. heapcore implements allocation, safepoints,
// and GC triggering; it never decides what a type looks like, how memory is
// carved up, which threads are mutators, or when a collection is worth
// running. Those are supplied by the embedder through these contracts.
package external

import "unsafe"

// TypeDescriptor describes the shape of a managed type well enough for the
// collector to size an allocation and trace its children.
//
// InstanceSize follows the spec's sign convention: for a non-array type it
// is the nonnegative in-memory size including the object header; for an
// array type it is the negative of a single element's size, so the total
// size of an N-element array is -InstanceSize*N plus the array header.
type TypeDescriptor interface {
	IsArray() bool
	InstanceSize() int32

	// Trace invokes visit for every managed child reference reachable
	// directly from object. object points at the embedded object (or
	// array) header, not at the record prefix.
	Trace(object unsafe.Pointer, visit func(child unsafe.Pointer))

	// Finalize runs any user-visible finalization callback registered
	// for object. Called by the finalizer processor exactly once per
	// dead object, after the node has already left the registry. A type
	// with nothing to finalize is expected to no-op.
	Finalize(object unsafe.Pointer)
}

// Allocator is the aligned block allocator collaborator. Alloc returns nil
// on failure; heapcore never attempts partial recovery from a nil result,
// it aborts the process (see package gcnode).
type Allocator interface {
	Alloc(size, align uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
}

// Mutator is a single live mutator thread as seen by the thread-data
// registry: something that can be asked for its GC roots and told to park.
type Mutator interface {
	// Roots invokes visit once per root reference owned by this mutator
	// (stack slots, thread-local handles, and so on).
	Roots(visit func(root unsafe.Pointer))

	// ParkAtSafepoint blocks the calling mutator until the collector
	// releases the global suspend flag. heapcore itself does not call it:
	// the safepoint package parks a polling mutator on its own barrier.
	ParkAtSafepoint()
}

// ThreadRegistry enumerates the runtime's live mutator threads.
type ThreadRegistry interface {
	ForEachMutator(fn func(Mutator))
}

// Scheduler decides when a collection is worth running. CPU counts are not
// part of it; that is CPUCounter's contract. heapcore only calls
// ShouldTrigger from the safepoint fast paths; it never runs scheduling
// logic of its own.
type Scheduler interface {
	// NoteWork records an approximate amount of work (instructions,
	// bytes allocated) performed since the last call.
	NoteWork(weight int64)

	// NoteAllocation records an allocation of size bytes about to happen.
	NoteAllocation(size uintptr)

	// NoteOOM is the informational hook described in spec §7/§4.4: the
	// scheduler may use it to request an emergency collection before the
	// next allocation attempt.
	NoteOOM(size uintptr)

	// ShouldTrigger reports whether accumulated pressure crosses the
	// policy's threshold for starting a new collection.
	ShouldTrigger() bool

	// Epoch returns the scheduler's own bookkeeping counter. heapcore
	// does not depend on its meaning; it is surfaced for diagnostics.
	Epoch() int64
}

// CPUCounter returns the number of CPUs this process may use. Implementations
// must never return zero.
type CPUCounter interface {
	CPUCount() int
}
