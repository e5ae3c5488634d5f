// Package threadpool provides a fixed-size pool of taskrunner.Runners with
// atomic round-robin dispatch, used to affinitise long-lived work (such as a
// connection) to a single runner for its lifetime.
package threadpool

import (
	"sync/atomic"

	"github.com/baileyforrest/thttpd/lib/taskrunner"
)

// DefaultSize is used when the caller asks for a pool of size 0.
const DefaultSize = 16

// Pool is an immutable set of Runners with a sticky round-robin selector.
type Pool struct {
	runners []*taskrunner.Runner
	next    uint64
}

// New creates size Runners (DefaultSize if size is 0) and starts their
// backing goroutines.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	runners := make([]*taskrunner.Runner, size)
	for i := range runners {
		runners[i] = taskrunner.New()
	}
	return &Pool{runners: runners}
}

// NextRunner returns the next Runner in round-robin order. Safe to call
// concurrently; callers typically call this once per connection and keep
// the result for the connection's lifetime.
func (p *Pool) NextRunner() *taskrunner.Runner {
	idx := atomic.AddUint64(&p.next, 1) - 1
	return p.runners[idx%uint64(len(p.runners))]
}

// Size returns the number of runners in the pool.
func (p *Pool) Size() int {
	return len(p.runners)
}

// Stop stops every runner in the pool, blocking until all have drained and
// exited.
func (p *Pool) Stop() {
	for _, r := range p.runners {
		r.Stop()
	}
}
