// Package serve implements the acceptor and per-connection request handler:
// a single epoll-driven acceptor goroutine dispatches each new connection to
// a TaskRunner in a thread pool, which owns that connection (and only that
// connection) for its lifetime.
package serve

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/baileyforrest/thttpd/cache"
	"github.com/baileyforrest/thttpd/lib/mpscqueue"
	"github.com/baileyforrest/thttpd/lib/threadpool"
)

// Server owns the listening socket, the epoll instance, the worker pool and
// the compression cache. All of its bookkeeping (the fd -> Handler map, the
// poller's interest set) is touched only from the acceptor goroutine that
// runs Start.
type Server struct {
	config Config

	rootDir       string
	canonicalRoot string

	listenFD int
	poller   *poller

	pipeReadFD  int
	pipeWriteFD int

	pool  *threadpool.Pool
	cache *cache.Cache
	log   *logrus.Entry

	// handlers is only ever touched from the acceptor goroutine. closed is
	// pushed to by handler runners (notifyClosed) and drained only by the
	// acceptor (drainClosed).
	handlers map[int]*Handler
	closed   *mpscqueue.Queue
}

// New validates cfg, canonicalises the served root, and opens the listening
// socket, epoll instance and event pipe. It does not start serving; call
// Start for that.
func New(cfg Config, log *logrus.Entry) (*Server, error) {
	canonicalRoot, err := canonicalizePath(cfg.PathToServe)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to canonicalize served root %q", cfg.PathToServe)
	}

	listenFD, err := listenSocket(cfg.Port)
	if err != nil {
		return nil, err
	}

	p, err := newPoller()
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := p.addLevelTriggered(listenFD); err != nil {
		unix.Close(listenFD)
		return nil, err
	}

	pipeRead, pipeWrite, err := newEventPipe()
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := p.addLevelTriggered(pipeRead); err != nil {
		unix.Close(listenFD)
		unix.Close(pipeRead)
		unix.Close(pipeWrite)
		return nil, err
	}

	s := &Server{
		config:        cfg,
		rootDir:       cfg.PathToServe,
		canonicalRoot: canonicalRoot,
		listenFD:      listenFD,
		poller:        p,
		pipeReadFD:    pipeRead,
		pipeWriteFD:   pipeWrite,
		pool:          threadpool.New(cfg.NumWorkerThreads),
		cache:         cache.New(cfg.CacheSizeBytes),
		log:           log,
		handlers:      make(map[int]*Handler),
		closed:        mpscqueue.New(),
	}
	return s, nil
}

// Start runs the acceptor's epoll loop. It blocks until an unrecoverable
// epoll error occurs.
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"port": s.config.Port,
		"root": s.canonicalRoot,
	}).Info("listening")

	for {
		events, err := s.poller.wait()
		if err != nil {
			return err
		}

		for _, ev := range events {
			fd := int(ev.Fd)
			switch {
			case fd == s.listenFD:
				s.acceptAll()
			case fd == s.pipeReadFD:
				s.drainWakePipe()
				s.drainClosed()
			default:
				s.dispatch(fd, ev.Events)
			}
		}
	}
}

// Stop tears down the worker pool, cache and listening resources. It does
// not interrupt a blocked Start; callers typically run Start in its own
// goroutine and arrange their own shutdown signal.
func (s *Server) Stop() {
	s.pool.Stop()
	s.cache.Stop()
	unix.Close(s.listenFD)
	unix.Close(s.pipeReadFD)
	unix.Close(s.pipeWriteFD)
}

func (s *Server) acceptAll() {
	for {
		fd, clientIP, err := acceptClient(s.listenFD)
		if err != nil {
			if isEAGAIN(err) {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			return
		}
		s.addClient(fd, clientIP)
	}
}

func (s *Server) addClient(fd int, clientIP string) {
	if err := s.poller.addEdgeTriggered(fd); err != nil {
		s.log.WithError(err).Warn("failed to register client fd with epoll")
		unix.Close(fd)
		return
	}

	runner := s.pool.NextRunner()
	h := newHandler(s, fd, clientIP, runner)
	s.handlers[fd] = h

	// A freshly accepted socket is immediately both readable (from the
	// handler's point of view: it should try) and writable; edge-triggered
	// epoll does not guarantee an initial event, so kick the state machine
	// explicitly here.
	runner.PostTask(func() {
		h.HandleUpdate(true, true)
	})
}

func (s *Server) dispatch(fd int, events uint32) {
	h, ok := s.handlers[fd]
	if !ok {
		// The handler was already removed by a prior drainClosed; a
		// trailing epoll event for a descriptor we no longer own.
		s.log.WithField("fd", fd).Warn("Unknown socket!")
		return
	}

	canRead := events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0
	canWrite := events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0

	h.runner.PostTask(func() {
		h.HandleUpdate(canRead, canWrite)
	})
}

// notifyClosed is called from a Handler's own runner goroutine (never the
// acceptor) to hand a closed connection's fd back to the acceptor, which
// owns removing it from the fd map and the poller's interest set.
func (s *Server) notifyClosed(fd int) {
	s.closed.Push(fd)
	var b [1]byte
	unix.Write(s.pipeWriteFD, b[:])
}

func (s *Server) drainWakePipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(s.pipeReadFD, buf[:])
		if err != nil || n == 0 {
			return
		}
	}
}

func (s *Server) drainClosed() {
	for !s.closed.Empty() {
		fd := s.closed.Pop().(int)
		s.poller.remove(fd)
		delete(s.handlers, fd)
		unix.Close(fd)
	}
}
