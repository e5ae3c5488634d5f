//go:build linux

package serve

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const listenBacklog = 128

// maxEpollEvents bounds how many ready descriptors a single EpollWait call
// can report at once.
const maxEpollEvents = 4096

// poller wraps a Linux epoll instance: level-triggered registration for the
// listen socket and the event pipe, edge-triggered read+write for client
// sockets.
type poller struct {
	epollFD int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1 failed")
	}
	return &poller{epollFD: fd}, nil
}

func (p *poller) addLevelTriggered(fd int) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return errors.Wrapf(err, "epoll_ctl(ADD, %d) failed", fd)
	}
	return nil
}

func (p *poller) addEdgeTriggered(fd int) error {
	event := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return errors.Wrapf(err, "epoll_ctl(ADD, %d) failed", fd)
	}
	return nil
}

func (p *poller) remove(fd int) {
	// Best-effort: a closed fd is already dropped from the interest set
	// by the kernel, so an error here is expected and not logged.
	_ = unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks until at least one descriptor is ready, with no timeout, and
// returns the ready events.
func (p *poller) wait() ([]unix.EpollEvent, error) {
	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		n, err := unix.EpollWait(p.epollFD, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, errors.Wrap(err, "epoll_wait failed")
		}
		return events[:n], nil
	}
}

// listenSocket creates a non-blocking, dual-stack (IPv6 + mapped IPv4)
// listening socket bound to in6addr_any:port with SO_REUSEADDR set.
func listenSocket(port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrap(err, "socket failed")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "setsockopt(SO_REUSEADDR) failed")
	}

	addr := &unix.SockaddrInet6{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "bind failed")
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "listen failed")
	}

	return fd, nil
}

// acceptClient accepts one pending connection on listenFD in non-blocking
// mode and returns the new fd plus a printable peer address.
func acceptClient(listenFD int) (int, string, error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, "", err
	}
	return nfd, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String()
	default:
		return "unknown"
	}
}

// newEventPipe creates a non-blocking anonymous pipe used to wake the
// acceptor's epoll_wait when a handler (running on another thread) needs
// the acceptor to notice a closed connection.
func newEventPipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return -1, -1, errors.Wrap(err, "pipe2 failed")
	}
	return fds[0], fds[1], nil
}

func isEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
