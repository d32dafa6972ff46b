package gcnode

import "github.com/tinygo-org/heapcore/external"

// Consumer is a detached chain of nodes produced by the collector during
// sweep. It owns every node it holds: destroying it (Close) frees them all
// iteratively, and merging it into a finalizer queue (via Drain) transfers
// that ownership onward.
type Consumer struct {
	alloc external.Allocator
	chain chain
}

// NewConsumer creates an empty consumer backed by alloc.
func NewConsumer(alloc external.Allocator) *Consumer {
	return &Consumer{alloc: alloc}
}

// Len reports the number of nodes currently held.
func (c *Consumer) Len() int {
	return c.chain.size
}

// Empty reports whether the consumer holds no nodes.
func (c *Consumer) Empty() bool {
	return c.chain.empty()
}

// Append adds a single already-detached node to the consumer's tail. Used
// by code outside gcnode (the object factory's finalizer-queue façade)
// that holds a raw *Node obtained from an Iterable.
func (c *Consumer) Append(n *Node) {
	c.chain.append(n)
}

// Drain moves every node out of c into dst in O(1) and empties c. Used to
// hand a sweep's dead-object chain to the finalizer processor without
// copying.
func (c *Consumer) Drain(dst *Consumer) {
	dst.chain.spliceFrom(&c.chain)
}

// Each visits every node in the consumer without removing it.
func (c *Consumer) Each(fn func(*Node)) {
	for n := c.chain.head; n != nil; n = n.next {
		fn(n)
	}
}

// Take removes and returns the current head node, or nil if the consumer is
// empty. Used by the finalizer worker to process nodes one at a time after
// atomically taking the whole queue.
func (c *Consumer) Take() *Node {
	n := c.chain.head
	if n == nil {
		return nil
	}
	c.chain.head = n.next
	if c.chain.head == nil {
		c.chain.tail = nil
	}
	c.chain.size--
	n.next = nil
	return n
}

// Close frees every node in the consumer iteratively (spec §9: no
// recursive destruction, so a million-node chain doesn't blow the stack).
func (c *Consumer) Close() {
	head := c.chain.head
	c.chain.reset()
	freeChain(c.alloc, head)
}
