// Package affinity implements the CPU-count collaborator from spec §6: a
// platform query that returns the number of CPUs the current process is
// actually allowed to run on, not the number of CPUs installed in the
// machine. The routine this is grounded on (the teacher's scheduler core
// detection) reads the process's affinity mask with sched_getaffinity; an
// older revision of that routine called sched_setaffinity by mistake, which
// would have silently pinned the process instead of querying it. This
// package only ever reads, on every platform it runs on.
package affinity

import "runtime"

// Counter implements external.CPUCounter. affinityCount is supplied per
// platform (affinity_linux.go reads the real mask; affinity_other.go falls
// back to runtime.NumCPU directly) so the public API never returns zero.
type Counter struct{}

// New creates a Counter. There is no state to hold; it's a type instead of a
// bare function so it satisfies external.CPUCounter by value.
func New() Counter { return Counter{} }

// CPUCount returns the population count of the process's allowed-CPU set,
// or runtime.NumCPU if that can't be determined.
func (Counter) CPUCount() int {
	if n := affinityCount(); n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
