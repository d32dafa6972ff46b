package object

// Color is the per-object mark state (spec §3). It is two-valued: every
// newly allocated object starts White; the collector paints an object
// Black the first time it is reached during a mark, and repaints every
// surviving Black object back to White at the end of sweep so the next
// cycle starts from a clean slate.
//
// Color is only ever written by the allocating producer (at creation,
// always White) and by the collector goroutine during mark/sweep — never
// concurrently by more than one of those at a time — so a plain byte
// suffices; no atomic is needed.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}
