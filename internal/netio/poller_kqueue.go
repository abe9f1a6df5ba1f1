//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package netio

import (
	"time"

	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// kqueuePoller is the BSD/macOS readiness poller.
type kqueuePoller struct {
	kq       int
	filter   int16
	writable bool
}

func newPoller(writable bool) (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errs.IoErrorf(err, "kqueue")
	}
	filter := int16(unix.EVFILT_READ)
	if writable {
		filter = int16(unix.EVFILT_WRITE)
	}
	return &kqueuePoller{kq: kq, filter: filter, writable: writable}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: p.filter,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return errs.IoErrorf(err, "kevent add")
	}
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: p.filter,
		Flags:  unix.EV_DELETE,
	}}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err != nil && err != unix.ENOENT {
		return errs.IoErrorf(err, "kevent delete")
	}
	return nil
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]int, error) {
	events := make([]unix.Kevent_t, 64)
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(p.kq, nil, events, &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errs.IoErrorf(err, "kevent wait")
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Ident))
	}
	return ready, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
