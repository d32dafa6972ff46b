package diagnostics

import (
	"fmt"

	"golang.org/x/net/trace"
)

// Tracer records one golang.org/x/net/trace.EventLog per GC epoch, so a
// running process's collector/finalizer activity can be inspected the same
// way x/net/trace inspects in-flight RPCs — via /debug/requests once the
// embedder mounts trace.Render on its own mux. heapcore never starts an
// HTTP server itself; cmd/heapcoredemo does that.
type Tracer struct {
	family string
}

// NewTracer creates a Tracer whose event logs are grouped under family
// (the string shown in the /debug/requests family list).
func NewTracer(family string) *Tracer {
	return &Tracer{family: family}
}

// EpochTrace is a single epoch's event log, open for the duration of one
// collection cycle.
type EpochTrace struct {
	ev trace.EventLog
}

// Begin opens a new event log for epoch.
func (t *Tracer) Begin(epoch int64) *EpochTrace {
	return &EpochTrace{ev: trace.NewEventLog(t.family, fmt.Sprintf("epoch-%d", epoch))}
}

// Printf records a formatted event against this epoch's trace.
func (e *EpochTrace) Printf(format string, args ...any) {
	e.ev.Printf(format, args...)
}

// Errorf records a formatted error event.
func (e *EpochTrace) Errorf(format string, args ...any) {
	e.ev.Errorf(format, args...)
}

// Finish closes the event log. Must be called exactly once.
func (e *EpochTrace) Finish() {
	e.ev.Finish()
}
