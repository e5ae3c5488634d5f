package serve

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/baileyforrest/thttpd/cache"
	"github.com/baileyforrest/thttpd/httpproto"
	"github.com/baileyforrest/thttpd/lib/taskrunner"
	"github.com/baileyforrest/thttpd/mimetype"
)

// phase is one state in a connection's request/response lifecycle.
type phase int

const (
	// phasePendingRequest is the initial state: waiting for a complete
	// request line plus headers to arrive.
	phasePendingRequest phase = iota
	// phaseOpeningCompressedStream is a waiting state: a compression
	// cache load is in flight and the handler does nothing until the
	// callback fires.
	phaseOpeningCompressedStream
	// phaseStreamOpened means a body source (file or cache cursor) is
	// ready and the response headers have not yet been built.
	phaseStreamOpened
	phaseSendingResponseHeader
	phaseSendingResponseBody
	// phaseSocketClosed is terminal: the handler no longer does anything
	// with fd, which the acceptor will close once it drains the
	// closed-descriptor queue.
	phaseSocketClosed
)

const recvBufSize = 4096
const bodyChunkSize = 32 * 1024

// Handler is the per-connection state machine described by the server's
// request lifecycle: PendingRequest -> [OpeningCompressedStream] ->
// StreamOpened -> SendingResponseHeader -> SendingResponseBody, looping back
// to PendingRequest for the next pipelined request, or terminating in
// SocketClosed.
//
// A Handler is only ever driven from its own runner. The compression cache
// may invoke its callback on a different goroutine, but that callback
// always re-posts onto the handler's runner before touching handler state.
type Handler struct {
	server *Server
	runner *taskrunner.Runner
	fd     int
	log    *logrus.Entry

	phase  phase
	parser httpproto.Parser

	canRead  bool
	canWrite bool

	servedPath    string
	responseCode  httpproto.StatusCode
	contentType   string
	contentLength int64
	lastModified  time.Time

	reader       io.Reader
	readerCloser io.Closer
	readerEOF    bool

	txBuf    []byte
	txOffset int
	txLength int
}

func newHandler(server *Server, fd int, clientIP string, runner *taskrunner.Runner) *Handler {
	return &Handler{
		server: server,
		runner: runner,
		fd:     fd,
		log:    server.log.WithField("client", clientIP).WithField("fd", fd),
	}
}

// HandleUpdate records which directions are ready and drives the state
// machine forward as far as it can go without blocking.
func (h *Handler) HandleUpdate(canRead, canWrite bool) {
	h.canRead = canRead
	h.canWrite = canWrite
	h.run()
}

func (h *Handler) run() {
	for {
		prev := h.phase
		switch h.phase {
		case phasePendingRequest:
			if !h.canRead {
				return
			}
			h.doPendingRequest()
		case phaseOpeningCompressedStream:
			return
		case phaseStreamOpened:
			h.doStreamOpened()
		case phaseSendingResponseHeader:
			if !h.canWrite {
				return
			}
			h.doSendingResponseHeader()
		case phaseSendingResponseBody:
			if !h.canWrite {
				return
			}
			h.doSendingResponseBody()
		case phaseSocketClosed:
			return
		}
		if h.phase == prev {
			return
		}
	}
}

// doPendingRequest drains whatever is already buffered in the parser, then
// reads from the socket for more, alternating until either a request moves
// the state machine forward, the socket has no more data right now (EAGAIN),
// or the socket is closed/errored.
func (h *Handler) doPendingRequest() {
	var data []byte
	for {
		state := h.parser.AddData(data)
		data = nil

		switch state {
		case httpproto.StateInvalid:
			h.log.Debug("dropping malformed request")
			continue

		case httpproto.StateReady:
			req := h.parser.TakeRequest()
			if h.processRequest(&req) {
				return
			}
			continue

		case httpproto.StatePending:
			buf := make([]byte, recvBufSize)
			n, err := unix.Read(h.fd, buf)
			if err != nil {
				if isEAGAIN(err) {
					return
				}
				h.closeSocket()
				return
			}
			if n == 0 {
				h.closeSocket()
				return
			}
			data = buf[:n]
		}
	}
}

// processRequest resolves req against the served root and either starts
// serving a response (returning true, having advanced the phase) or leaves
// the handler in phasePendingRequest to wait for the next pipelined request
// on the connection (returning false). Rejections intentionally produce no
// response, matching a keep-alive connection that simply ignores a bad
// request.
func (h *Handler) processRequest(req *httpproto.Request) bool {
	cleaned := path.Clean("/" + req.Target)
	joined := filepath.Join(h.server.rootDir, filepath.FromSlash(cleaned))

	canonical, err := canonicalizePath(joined)
	if err != nil {
		h.log.WithError(err).Debug("failed to canonicalize request path")
		return false
	}
	if !isWithinRoot(canonical, h.server.canonicalRoot) {
		h.log.WithField("path", canonical).Warn("request escapes served root")
		return false
	}

	info, err := os.Stat(canonical)
	if err != nil {
		h.log.WithError(err).Debug("stat failed")
		return false
	}
	if info.IsDir() {
		canonical = filepath.Join(canonical, "index.html")
		info, err = os.Stat(canonical)
		if err != nil {
			h.log.WithError(err).Debug("no index.html in directory")
			return false
		}
	}

	h.servedPath = canonical
	h.responseCode = httpproto.StatusOK
	h.contentType = mimetype.ForFilename(canonical)
	h.lastModified = info.ModTime()

	if h.server.config.EnableCompression && mimetype.ShouldCompress(h.contentType) {
		h.phase = phaseOpeningCompressedStream
		runner := h.runner
		h.server.cache.RequestFile(canonical, h.runner, func(cur *cache.Cursor, err error) {
			runner.PostTask(func() {
				h.onCompressedFileRead(cur, err)
			})
		})
		return true
	}

	fr, err := newFileReader(canonical)
	if err != nil {
		h.log.WithError(err).Debug("open failed")
		return false
	}
	h.reader = fr
	h.readerCloser = fr
	h.contentLength = fr.Size()
	h.phase = phaseStreamOpened
	return true
}

// onCompressedFileRead is the compression cache's callback, always invoked
// on h.runner. It may fire after the connection has already closed (the
// client disconnected while a load was in flight), in which case it is a
// no-op: the handler does not act on a callback for a phase it has already
// left.
func (h *Handler) onCompressedFileRead(cur *cache.Cursor, err error) {
	if h.phase != phaseOpeningCompressedStream {
		return
	}

	if err != nil {
		h.log.WithError(err).Warn("compression cache load failed")
		h.resetPerRequestState()
		h.phase = phasePendingRequest
		h.run()
		return
	}

	h.reader = cur
	h.readerCloser = nil
	h.contentLength = cur.Size()
	h.phase = phaseStreamOpened
	h.run()
}

// doStreamOpened synthesises the response header block and transitions
// straight to SendingResponseHeader; it never waits.
func (h *Handler) doStreamOpened() {
	resp := httpproto.NewResponse(h.responseCode, time.Now())
	resp.Set("Content-Type", h.contentType)
	resp.Set("Content-Length", strconv.FormatInt(h.contentLength, 10))
	resp.Set("Last-Modified", httpproto.FormatTime(h.lastModified))

	h.txBuf = resp.WriteHeader()
	h.txOffset = 0
	h.txLength = len(h.txBuf)
	h.phase = phaseSendingResponseHeader
}

func (h *Handler) doSendingResponseHeader() {
	done, err := h.writeBytes()
	if err != nil {
		h.log.WithError(err).Warn("failed to write response header")
		h.resetPerRequestState()
		h.phase = phasePendingRequest
		return
	}
	if !done {
		return
	}
	h.txBuf = nil
	h.txOffset = 0
	h.txLength = 0
	h.phase = phaseSendingResponseBody
}

func (h *Handler) doSendingResponseBody() {
	for {
		if h.txOffset == h.txLength {
			if h.readerEOF {
				h.finishResponse()
				return
			}

			buf := make([]byte, bodyChunkSize)
			n, err := h.reader.Read(buf)
			h.txBuf = buf[:n]
			h.txOffset = 0
			h.txLength = n

			if err == io.EOF {
				h.readerEOF = true
			} else if err != nil {
				h.log.WithError(err).Warn("failed to read response body")
				h.finishResponse()
				return
			}

			if n == 0 && !h.readerEOF {
				continue
			}
		}

		done, err := h.writeBytes()
		if err != nil {
			h.log.WithError(err).Warn("failed to write response body")
			h.finishResponse()
			return
		}
		if !done {
			return
		}
	}
}

// writeBytes sends as much of txBuf[txOffset:txLength] as the socket will
// currently accept. done is true once the whole buffer has been sent.
//
// This uses unix.Write rather than unix.Send: the x/sys/unix wrapper for
// sendto(2) discards the syscall's return value and only reports success or
// failure, which can't express a partial non-blocking write. Write on a
// non-blocking fd gives the same EAGAIN-on-would-block behavior plus the
// byte count a partial send needs. Writing to a socket whose peer has reset
// the connection raises SIGPIPE unless the process ignores it, which
// cmd/thttpd does at startup.
func (h *Handler) writeBytes() (done bool, err error) {
	for h.txOffset < h.txLength {
		n, werr := unix.Write(h.fd, h.txBuf[h.txOffset:h.txLength])
		if werr != nil {
			if isEAGAIN(werr) {
				return false, nil
			}
			return false, werr
		}
		h.txOffset += n
	}
	return true, nil
}

func (h *Handler) finishResponse() {
	h.resetPerRequestState()
	h.phase = phasePendingRequest
}

func (h *Handler) resetPerRequestState() {
	if h.readerCloser != nil {
		h.readerCloser.Close()
		h.readerCloser = nil
	}
	h.reader = nil
	h.readerEOF = false
	h.txBuf = nil
	h.txOffset = 0
	h.txLength = 0
	h.servedPath = ""
}

func (h *Handler) closeSocket() {
	h.resetPerRequestState()
	h.phase = phaseSocketClosed
	h.server.notifyClosed(h.fd)
}
