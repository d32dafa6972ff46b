//go:build linux

package affinity

import "golang.org/x/sys/unix"

// affinityCount reads the current process's affinity mask via
// sched_getaffinity and returns the number of bits set, or 0 if the
// syscall failed (e.g. a sandbox that denies it).
func affinityCount() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0
	}
	return set.Count()
}
