package gcnode

import (
	"runtime"
	"sync/atomic"
)

// spinlock is the short-critical-section lock protecting the registry.
// It is held only across splice, iteration-handle acquisition, and node
// extraction (spec §5) — never across allocation or tracing — so a simple
// spin-then-yield loop beats a full mutex: the critical sections here are a
// handful of pointer writes, not anything that blocks.
type spinlock struct {
	held atomic.Bool
}

func (l *spinlock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinlock) Unlock() {
	l.held.Store(false)
}
