// Package policy provides a reference external.Scheduler: the trigger
// policy the spec's Open Questions section deliberately leaves
// unspecified ("the exact scheduler policy... must be supplied by the
// external scheduler collaborator"). It is not part of heapcore's core —
// heapcore only ever calls the interface — but every embedder needs some
// implementation to start from, and a hardcoded Go literal is a poor
// substitute for the YAML-driven tuning knobs the teacher's own tooling
// favors for anything an operator might want to change without a rebuild.
package policy

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v2"
)

// Config holds the tunable thresholds for Scheduler, loaded from YAML.
type Config struct {
	// HeapPressureBytes is the cumulative allocation volume, in bytes,
	// that triggers a collection.
	HeapPressureBytes int64 `yaml:"heap_pressure_bytes"`

	// PollWeightBudget is the cumulative poll-point weight (spec §4.4's
	// onFunctionPrologue/onLoopBackedge/onExceptionUnwind weight argument)
	// that triggers a collection independent of allocation volume.
	PollWeightBudget int64 `yaml:"poll_weight_budget"`

	// Workers is the number of finalizer/sweep helper goroutines an
	// embedder may want to size against; heapcore itself only ever runs
	// one collector and one finalizer goroutine, but a richer embedder
	// scheduler might fan work out further and wants this in one place.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns reasonable defaults for a small-to-medium heap.
func DefaultConfig() Config {
	return Config{
		HeapPressureBytes: 64 << 20, // 64 MiB
		PollWeightBudget:  1 << 20,
		Workers:           1,
	}
}

// LoadConfig reads and parses a YAML policy file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("policy: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Scheduler is a reference external.Scheduler that triggers a collection
// once cumulative allocation bytes or poll weight since the last Reset
// crosses the configured threshold, whichever comes first. It has no
// notion of CPU count or worker sizing on its own; that's affinity's job.
type Scheduler struct {
	cfg Config

	allocated atomic.Int64
	work      atomic.Int64
	epoch     atomic.Int64
	oom       atomic.Bool
}

// New creates a Scheduler driven by cfg.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// NoteWork records weight units of poll-point work.
func (s *Scheduler) NoteWork(weight int64) {
	s.work.Add(weight)
}

// NoteAllocation records size bytes about to be allocated.
func (s *Scheduler) NoteAllocation(size uintptr) {
	s.allocated.Add(int64(size))
}

// NoteOOM records that the allocator could not satisfy a request. The next
// ShouldTrigger call reports true unconditionally until a collection clears
// the flag via Reset.
func (s *Scheduler) NoteOOM(uintptr) {
	s.oom.Store(true)
}

// ShouldTrigger reports whether accumulated pressure has crossed this
// policy's configured thresholds.
func (s *Scheduler) ShouldTrigger() bool {
	if s.oom.Load() {
		return true
	}
	if s.cfg.HeapPressureBytes > 0 && s.allocated.Load() >= s.cfg.HeapPressureBytes {
		return true
	}
	if s.cfg.PollWeightBudget > 0 && s.work.Load() >= s.cfg.PollWeightBudget {
		return true
	}
	return false
}

// Reset clears the accumulated pressure counters. Called by the collector's
// embedder after a collection completes, so the next cycle's thresholds
// measure work done since that collection rather than since process start.
func (s *Scheduler) Reset() {
	s.allocated.Store(0)
	s.work.Store(0)
	s.oom.Store(false)
	s.epoch.Add(1)
}

// Epoch returns this scheduler's own bookkeeping counter, bumped once per
// Reset call. heapcore never interprets this value; it's surfaced purely
// for diagnostics.
func (s *Scheduler) Epoch() int64 {
	return s.epoch.Load()
}
