package netio

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// Connection wraps one accepted, non-blocking socket for the lifetime of a
// single request.
// The uuid gives request-level log correlation across the accept, worker,
// and bulk-write stages.
type Connection struct {
	ID         uuid.UUID
	Fd         int
	RemoteAddr string
}

func newConnection(fd int, remoteAddr string) *Connection {
	return &Connection{ID: uuid.New(), Fd: fd, RemoteAddr: remoteAddr}
}

// ReadAll drains the connection until the peer half-closes its write side
// (a zero-length read), returning everything received. idleTimeout bounds
// how long the reader will wait across EAGAIN retries without any new
// bytes arriving.
func (c *Connection) ReadAll(idleTimeout time.Duration) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 64*1024)
	deadline := time.Now().Add(idleTimeout)
	for {
		n, err := unix.Read(c.Fd, chunk)
		if err != nil {
			if err == unix.EAGAIN {
				if time.Now().After(deadline) {
					return nil, errs.TimeoutError("connection read idle timeout")
				}
				time.Sleep(2 * time.Millisecond)
				continue
			}
			return nil, errs.IoErrorf(err, "read connection")
		}
		if n == 0 {
			return buf, nil
		}
		buf = append(buf, chunk[:n]...)
		deadline = time.Now().Add(idleTimeout)
	}
}

// Close releases the underlying file descriptor.
func (c *Connection) Close() error {
	return unix.Close(c.Fd)
}
