// Package cache implements a path -> in-memory-gzip cache with
// single-flight loading and cross-thread callbacks, used by the request
// handler to avoid re-compressing a file for every concurrent request.
package cache

import (
	"container/list"
	"sync/atomic"

	"github.com/baileyforrest/thttpd/lib/taskrunner"
)

// Callback is invoked exactly once, on some TaskRunner, with either a
// Cursor over the compressed bytes or an error.
type Callback func(*Cursor, error)

type pendingRead struct {
	callbacks []Callback
}

// Cache maps a filesystem path to an immutable in-memory gzip-compressed
// CachedFile. At most one load is ever in flight for a given path
// (single-flight): concurrent RequestFile callers for the same path all
// observe the same CachedFile once it loads.
//
// The authoritative map and the pending-read table are owned by, and only
// ever mutated on, runner. A read-only snapshot of the authoritative map is
// published after every successful insert and may be consulted from any
// goroutine without synchronising with runner, per the two-tier lookup
// design in the teacher's spec.
type Cache struct {
	runner *taskrunner.Runner

	maxSizeBytes int64

	snapshot atomic.Pointer[map[string]*CachedFile]

	// Owned by runner.
	authoritative map[string]*CachedFile
	pending       map[string]*pendingRead
	totalSize     int64
	lru           *list.List
	lruElem       map[string]*list.Element
}

// New returns a Cache with its own dedicated TaskRunner. maxSizeBytes caps
// the total resident compressed size; 0 means unbounded. When a successful
// insert exceeds the cap, entries are evicted oldest first, where an entry's
// age counts from its insert or its last hit on the slow path; hits served
// from the snapshot do not refresh an entry's position.
func New(maxSizeBytes int64) *Cache {
	c := &Cache{
		runner:        taskrunner.New(),
		maxSizeBytes:  maxSizeBytes,
		authoritative: make(map[string]*CachedFile),
		pending:       make(map[string]*pendingRead),
		lru:           list.New(),
		lruElem:       make(map[string]*list.Element),
	}
	empty := map[string]*CachedFile{}
	c.snapshot.Store(&empty)
	return c
}

// Stop stops the cache's runner.
func (c *Cache) Stop() {
	c.runner.Stop()
}

// RequestFile requests the compressed bytes for path. callback runs exactly
// once: on the cache's own runner for a slow-path hit or when a load
// completes (successfully or not), or inline on the goroutine calling
// RequestFile for a fast-path snapshot hit. caller is the
// TaskRunner that should perform the (possibly) expensive compression work,
// for load balancing - typically the connection's own runner.
func (c *Cache) RequestFile(path string, caller *taskrunner.Runner, callback Callback) {
	snapshot := *c.snapshot.Load()
	if cached, ok := snapshot[path]; ok {
		callback(cached.NewCursor(), nil)
		return
	}

	c.runner.PostTask(func() {
		c.requestFileSlowPath(path, caller, callback)
	})
}

func (c *Cache) requestFileSlowPath(path string, caller *taskrunner.Runner, callback Callback) {
	if cached, ok := c.authoritative[path]; ok {
		c.touchLRU(path)
		callback(cached.NewCursor(), nil)
		return
	}

	pr, alreadyPending := c.pending[path]
	if !alreadyPending {
		pr = &pendingRead{}
		c.pending[path] = pr
	}
	pr.callbacks = append(pr.callbacks, callback)

	// First waiter for this path kicks off the load; later waiters just
	// queue onto the same pendingRead.
	if len(pr.callbacks) > 1 {
		return
	}

	myRunner := c.runner
	caller.PostTask(func() {
		file, err := buildCachedFile(path)
		myRunner.PostTask(func() {
			c.onReadFile(path, file, err)
		})
	})
}

func (c *Cache) onReadFile(path string, file *CachedFile, err error) {
	pr := c.pending[path]
	delete(c.pending, path)

	if err != nil {
		for _, cb := range pr.callbacks {
			cb(nil, err)
		}
		return
	}

	c.insert(path, file)
	for _, cb := range pr.callbacks {
		cb(file.NewCursor(), nil)
	}
}

func (c *Cache) insert(path string, file *CachedFile) {
	c.authoritative[path] = file
	c.totalSize += file.Size()
	c.touchLRU(path)
	c.evictIfNeeded()
	c.publishSnapshot()
}

func (c *Cache) touchLRU(path string) {
	if elem, ok := c.lruElem[path]; ok {
		c.lru.MoveToFront(elem)
		return
	}
	c.lruElem[path] = c.lru.PushFront(path)
}

func (c *Cache) evictIfNeeded() {
	if c.maxSizeBytes <= 0 {
		return
	}
	for c.totalSize > c.maxSizeBytes {
		back := c.lru.Back()
		if back == nil {
			return
		}
		path := back.Value.(string)
		c.lru.Remove(back)
		delete(c.lruElem, path)
		if f, ok := c.authoritative[path]; ok {
			c.totalSize -= f.Size()
			delete(c.authoritative, path)
		}
	}
}

func (c *Cache) publishSnapshot() {
	snap := make(map[string]*CachedFile, len(c.authoritative))
	for k, v := range c.authoritative {
		snap[k] = v
	}
	c.snapshot.Store(&snap)
}
