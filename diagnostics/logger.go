// Package diagnostics is heapcore's ambient logging and tracing layer: a
// colored, tty-aware logger for human-readable collector/finalizer status
// lines, and an x/net/trace wiring for inspecting GC epochs the way a
// request-tracing dashboard inspects RPCs.
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger writes timestamped, ANSI-colored status lines for the collector
// and finalizer. Color is only emitted when the underlying writer looks
// like a real terminal, the same guard tinygo's own CLI output uses before
// handing work to go-colorable.
type Logger struct {
	out      io.Writer
	colorize bool
}

// NewStderr creates a Logger writing to a colorable-wrapped stderr.
func NewStderr() *Logger {
	out := colorable.NewColorableStderr()
	colorize := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return &Logger{out: out, colorize: colorize}
}

// New wraps an arbitrary writer with no coloring, for tests and for
// callers that want plain output (e.g. redirecting to a file).
func New(out io.Writer) *Logger {
	return &Logger{out: out}
}

const (
	ansiCyan   = "\x1b[36m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

func (l *Logger) colorWrap(color, msg string) string {
	if !l.colorize {
		return msg
	}
	return color + msg + ansiReset
}

// Collector logs a collector state-machine transition, e.g. "sweeping".
func (l *Logger) Collector(epoch int64, phase string, detail string) {
	line := fmt.Sprintf("%s [collector] epoch=%d %s %s\n",
		time.Now().Format(time.RFC3339Nano), epoch, l.colorWrap(ansiCyan, phase), detail)
	io.WriteString(l.out, line)
}

// Finalizer logs a finalizer worker event.
func (l *Logger) Finalizer(epoch int64, detail string) {
	line := fmt.Sprintf("%s [finalizer] epoch=%d %s\n",
		time.Now().Format(time.RFC3339Nano), epoch, l.colorWrap(ansiYellow, detail))
	io.WriteString(l.out, line)
}

// Bytes renders a byte count the way a human wants it reported, not as a
// raw integer.
func Bytes(n uint64) string {
	return bytesize.New(float64(n)).String()
}

// SinceGC renders the time elapsed since lastGC as a human-readable "last
// GC Ns ago" string, the diagnostics-side consumer of
// collector.Stats.LastRanAt (spec §4's last-GC-timestamp supplement). If
// lastGC is the zero Time (no collection has run yet), it reports that
// directly instead of an implausible multi-decade duration.
func SinceGC(lastGC time.Time) string {
	if lastGC.IsZero() {
		return "no GC yet"
	}
	return fmt.Sprintf("last GC %s ago", time.Since(lastGC).Round(time.Millisecond))
}
