// Package mpscqueue provides an unbounded multi-producer, single-consumer
// FIFO queue with a blocking wait for the consumer.
package mpscqueue

import "sync"

// node is a single queue element. The consumer only ever touches head
// through the dummy node, so producers never contend with the consumer on
// the head pointer - only on tail, via tailMu.
type node struct {
	next  *node
	value any
}

// Queue is a multi-producer, single-consumer FIFO. Push is safe from any
// goroutine; Empty, Pop and WaitNotEmpty must only be called from the single
// consumer goroutine.
type Queue struct {
	tailMu sync.Mutex
	tail   *node

	head *node

	notEmpty chan struct{}
	notifyMu sync.Mutex
}

// New returns an empty Queue.
func New() *Queue {
	dummy := &node{}
	return &Queue{
		head:     dummy,
		tail:     dummy,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push enqueues v. Safe to call concurrently from any number of goroutines.
func (q *Queue) Push(v any) {
	n := &node{value: v}

	q.tailMu.Lock()
	q.tail.next = n
	q.tail = n
	q.tailMu.Unlock()

	// Wake a consumer blocked in WaitNotEmpty. The channel is buffered by
	// one, so this never blocks and a pending wake is never lost.
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Empty reports whether the queue has no element beyond the sentinel head
// node. Consumer-only.
func (q *Queue) Empty() bool {
	return q.head.next == nil
}

// Pop removes and returns the oldest element. Precondition: !Empty().
// Consumer-only.
func (q *Queue) Pop() any {
	if q.Empty() {
		panic("mpscqueue: Pop called on empty queue")
	}
	next := q.head.next
	v := next.value
	next.value = nil
	q.head = next
	return v
}

// WaitNotEmpty blocks until Empty() is false, then returns. Consumer-only.
func (q *Queue) WaitNotEmpty() {
	for q.Empty() {
		<-q.notEmpty
	}
}
