//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package netio

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// pollPoller is the generic POSIX poll(2)-based fallback for platforms
// with neither epoll nor kqueue.
type pollPoller struct {
	mu       sync.Mutex
	fds      map[int]struct{}
	writable bool
}

func newPoller(writable bool) (Poller, error) {
	return &pollPoller{fds: make(map[int]struct{}), writable: writable}, nil
}

func (p *pollPoller) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds[fd] = struct{}{}
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fds, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]int, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.fds))
	order := make([]int, 0, len(p.fds))
	events := int16(unix.POLLIN)
	if p.writable {
		events = int16(unix.POLLOUT)
	}
	for fd := range p.fds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		order = append(order, fd)
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errs.IoErrorf(err, "poll")
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]int, 0, n)
	for i, pfd := range fds {
		if pfd.Revents&(events|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, order[i])
		}
	}
	return ready, nil
}

func (p *pollPoller) Close() error { return nil }
