package gcnode

import "github.com/tinygo-org/heapcore/external"

// Producer is a single mutator thread's private node chain. It is never
// shared: only the owning thread ever touches it directly. Publish splices
// the whole chain onto the registry's tail in O(1).
type Producer struct {
	registry *Registry
	alloc    external.Allocator
	chain    chain
}

// NewProducer creates a producer that allocates through alloc and publishes
// into registry.
func NewProducer(registry *Registry, alloc external.Allocator) *Producer {
	return &Producer{registry: registry, alloc: alloc}
}

// Insert allocates dataSize bytes of node data, links the new node onto the
// producer's private tail, and returns it. O(1); never blocks; aborts the
// process on allocator exhaustion (spec §4.1).
func (p *Producer) Insert(dataSize uintptr) *Node {
	n := allocNode(p.alloc, dataSize)
	p.chain.append(n)
	return n
}

// Publish splices the producer's private chain onto the registry's tail and
// empties the producer. A no-op, taking no lock, if the producer is empty.
func (p *Producer) Publish() {
	p.registry.publish(&p.chain)
}

// Close publishes any remaining nodes. Callers should defer Close so that
// nodes allocated just before thread teardown are never lost (spec §9's
// "producer auto-publish" note) — unlike the teacher's freestanding
// runtime, a hosted Go mutator has an explicit teardown point to hang this
// off of rather than a destructor, so Close plays that role.
func (p *Producer) Close() {
	p.Publish()
}
