package gcnode

import (
	"sync"
	"unsafe"

	"github.com/sigurn/crc16"
)

// DebugChecksums gates the node-header integrity check described in
// SPEC_FULL.md's domain-stack table: a CRC-16 over each node's fixed
// header, checked on free. It exists to catch the "broken node layout"
// fatal condition from spec §7 (a stray write having corrupted a node's
// next-link or size before it could do worse damage to the chain) rather
// than to run in production, where the extra table lookup on every
// alloc/free would be pure overhead. Tests that want to exercise memory
// corruption detection set this to true.
var DebugChecksums = false

var checksumTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// checksums tracks the last-known-good header CRC per node address. It is
// only populated and consulted when DebugChecksums is set.
var checksums sync.Map // map[uintptr]uint16

func headerBytes(n *Node) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(n)), int(unsafe.Sizeof(Node{})))
}

func recordChecksum(n *Node) {
	if !DebugChecksums {
		return
	}
	sum := crc16.Checksum(headerBytes(n), checksumTable)
	checksums.Store(uintptr(unsafe.Pointer(n)), sum)
}

// verifyChecksum panics if n's header has been corrupted since it was last
// recorded. A no-op when DebugChecksums is false or no prior checksum was
// recorded for this address (e.g. a node freed and never reused since
// enabling the flag).
func verifyChecksum(n *Node) {
	if !DebugChecksums {
		return
	}
	addr := uintptr(unsafe.Pointer(n))
	prev, ok := checksums.Load(addr)
	if !ok {
		return
	}
	sum := crc16.Checksum(headerBytes(n), checksumTable)
	if sum != prev.(uint16) {
		panic("heapcore: corrupted node header detected")
	}
	checksums.Delete(addr)
}
