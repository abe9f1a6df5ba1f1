package netio

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// TcpListener is the non-blocking, readiness-polled socket: one socket
// bound to (host, port), registered with a platform Poller; the accept
// loop drains all pending accepts per tick and hands each connection's
// drained payload to the RequestQueue.
type TcpListener struct {
	fd       int
	poller   Poller
	queue    *RequestQueue
	log      *logrus.Logger
	idleRead time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTcpListener binds and listens on host:port, ready to Serve.
func NewTcpListener(host string, port int, queue *RequestQueue, log *logrus.Logger) (*TcpListener, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.IoErrorf(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errs.IoErrorf(err, "setsockopt SO_REUSEADDR")
	}

	var addr [4]byte
	if host != "" && host != "0.0.0.0" {
		ip := net.ParseIP(host)
		if ip == nil {
			unix.Close(fd)
			return nil, errs.ConfigError("invalid listen host: " + host)
		}
		ip4 := ip.To4()
		if ip4 == nil {
			unix.Close(fd)
			return nil, errs.ConfigError("only IPv4 listen addresses are supported: " + host)
		}
		copy(addr[:], ip4)
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errs.IoErrorf(err, fmt.Sprintf("bind %s:%d", host, port))
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, errs.IoErrorf(err, "listen")
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errs.IoErrorf(err, "set listener non-blocking")
	}

	poller, err := newPoller(false)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := poller.Add(fd); err != nil {
		unix.Close(fd)
		poller.Close()
		return nil, err
	}

	return &TcpListener{
		fd:       fd,
		poller:   poller,
		queue:    queue,
		log:      log,
		idleRead: 30 * time.Second,
		stop:     make(chan struct{}),
	}, nil
}

// SetReadIdleTimeout overrides the default 30s per-connection read idle
// timeout.
func (l *TcpListener) SetReadIdleTimeout(d time.Duration) { l.idleRead = d }

// Serve runs the poller/acceptor loop until Stop is called. It is meant to
// run on its own goroutine.
func (l *TcpListener) Serve() {
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		ready, err := l.poller.Wait(200 * time.Millisecond)
		if err != nil {
			l.log.WithError(err).Warn("netio: poller wait failed")
			continue
		}
		for range ready {
			l.acceptAll()
		}
	}
}

// acceptAll drains every pending connection on the listening socket.
func (l *TcpListener) acceptAll() {
	for {
		nfd, sa, err := unix.Accept(l.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			l.log.WithError(err).Warn("netio: accept failed")
			return
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			l.log.WithError(err).Warn("netio: failed to set accepted fd non-blocking")
			unix.Close(nfd)
			continue
		}
		conn := newConnection(nfd, sockaddrString(sa))
		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// handleConnection drains one connection's request payload and enqueues it.
// Partial or aborted reads drop the connection with a logged error.
func (l *TcpListener) handleConnection(conn *Connection) {
	defer l.wg.Done()
	payload, err := conn.ReadAll(l.idleRead)
	if err != nil {
		l.log.WithFields(logrus.Fields{"connId": conn.ID, "remote": conn.RemoteAddr, "err": err}).
			Warn("netio: connection read failed, dropping")
		conn.Close()
		return
	}
	l.queue.Push(RequestItem{Payload: payload, Conn: conn})
}

// Stop signals Serve to return; in-flight connection reads are left to
// finish naturally.
func (l *TcpListener) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Close stops the listener and releases the listening socket and poller.
func (l *TcpListener) Close() error {
	l.Stop()
	l.poller.Close()
	return unix.Close(l.fd)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	default:
		return "unknown"
	}
}
