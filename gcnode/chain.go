package gcnode

// chain is the shared linked-list bookkeeping behind the registry, producer
// queues, and consumer queues. It maintains the invariants from spec §3:
// head == nil iff tail == nil iff size == 0; tail.next == nil whenever the
// chain is non-empty; forward iteration from head visits size nodes.
//
// chain itself does no locking — callers (Registry, Producer, Consumer)
// decide what, if anything, needs to be synchronized.
type chain struct {
	head *Node
	tail *Node
	size int
}

func (c *chain) empty() bool {
	return c.head == nil
}

// append adds a freshly allocated node (with next == nil) to the tail.
func (c *chain) append(n *Node) {
	if c.tail == nil {
		c.head = n
		c.tail = n
	} else {
		c.tail.next = n
		c.tail = n
	}
	c.size++
}

// spliceFrom moves all of other's nodes onto c's tail in O(1) and empties
// other. Splicing an empty chain is a no-op.
func (c *chain) spliceFrom(other *chain) {
	if other.head == nil {
		return
	}
	if c.tail == nil {
		c.head = other.head
	} else {
		c.tail.next = other.head
	}
	c.tail = other.tail
	c.size += other.size
	other.head = nil
	other.tail = nil
	other.size = 0
}

// reset empties the chain without freeing anything; used when ownership of
// every node has already been transferred elsewhere.
func (c *chain) reset() {
	c.head = nil
	c.tail = nil
	c.size = 0
}
