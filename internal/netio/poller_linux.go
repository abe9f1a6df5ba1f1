//go:build linux

package netio

import (
	"time"

	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// epollPoller is the Linux readiness poller.
type epollPoller struct {
	epfd     int
	writable bool
}

// newPoller creates a platform poller that watches fds for read
// readiness, or for write readiness when writable is true (used by
// BulkWriter for POLLOUT-style notifications).
func newPoller(writable bool) (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.IoErrorf(err, "epoll_create1")
	}
	return &epollPoller{epfd: epfd, writable: writable}, nil
}

func (p *epollPoller) events() uint32 {
	if p.writable {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: p.events(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errs.IoErrorf(err, "epoll_ctl add")
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return errs.IoErrorf(err, "epoll_ctl del")
	}
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration) ([]int, error) {
	events := make([]unix.EpollEvent, 64)
	msec := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errs.IoErrorf(err, "epoll_wait")
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	return ready, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
