// Package taskrunner provides a single-threaded task executor: one goroutine
// pinned to an OS thread, draining a multi-producer queue of zero-argument
// closures in FIFO order.
package taskrunner

import (
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/baileyforrest/thttpd/lib/mpscqueue"
)

// Task is a one-shot callable invoked exactly once by the Runner that pops
// it.
type Task func()

// Runner owns one goroutine (locked to its OS thread) and one task queue.
// Tasks posted from the same producer run in the order they were posted;
// tasks from different producers interleave arbitrarily. A Runner's
// identity can be compared with IsCurrentThread to assert which goroutine is
// executing a given callback.
type Runner struct {
	tasks   *mpscqueue.Queue
	running int32 // atomic bool

	wg sync.WaitGroup
}

// currentRunner is set on entry to a Runner's run loop and maps each running
// Runner to the ID of the OS thread its run loop goroutine is locked to.
// It exists only so IsCurrentThread can assert invariants - it is never used
// to route work.
var currentRunner struct {
	mu sync.Mutex
	m  map[*Runner]int
}

func init() {
	currentRunner.m = make(map[*Runner]int)
}

// New spawns the backing goroutine and returns a running Runner.
func New() *Runner {
	r := &Runner{
		tasks:   mpscqueue.New(),
		running: 1,
	}
	r.wg.Add(1)
	go r.runLoop()
	return r
}

// PostTask enqueues task to run on r. Safe to call from any goroutine,
// including r's own.
func (r *Runner) PostTask(task Task) {
	r.tasks.Push(task)
}

// IsCurrentThread reports whether the calling goroutine is r's run loop
// goroutine. Tasks must not repost to their own runner in a way that
// depends on synchronous execution unless this returns true.
func (r *Runner) IsCurrentThread() bool {
	currentRunner.mu.Lock()
	defer currentRunner.mu.Unlock()
	tid, ok := currentRunner.m[r]
	return ok && tid == syscall.Gettid()
}

// Stop posts a no-op task to break the runner out of its wait, then blocks
// until the goroutine has drained and exited. Any task posted after Stop is
// called may be silently dropped.
func (r *Runner) Stop() {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return
	}
	r.tasks.Push(Task(func() {}))
	r.wg.Wait()
}

func (r *Runner) runLoop() {
	defer r.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	currentRunner.mu.Lock()
	currentRunner.m[r] = syscall.Gettid()
	currentRunner.mu.Unlock()
	defer func() {
		currentRunner.mu.Lock()
		delete(currentRunner.m, r)
		currentRunner.mu.Unlock()
	}()

	for atomic.LoadInt32(&r.running) == 1 {
		r.tasks.WaitNotEmpty()
		for !r.tasks.Empty() {
			task := r.tasks.Pop().(Task)
			task()
		}
	}

	// Run anything posted before Stop that the loop above had not yet seen.
	for !r.tasks.Empty() {
		r.tasks.Pop().(Task)()
	}
}
