package netio

import (
	"net"
	"testing"
	"time"

	"synnergy-ledger/pkg/errs"
)

// rawFd extracts the OS file descriptor behind a *net.TCPConn so the
// syscall-level BulkWriter can write to it directly.
func rawFd(t *testing.T, conn net.Conn) int {
	t.Helper()
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		t.Fatalf("expected *net.TCPConn, got %T", conn)
	}
	f, err := tcp.File()
	if err != nil {
		t.Fatalf("File(): %v", err)
	}
	return int(f.Fd())
}

// TestBulkWriterCompletesAnOrdinaryWrite checks the success path: a small
// buffer to a peer that's actively reading completes without error.
func TestBulkWriterCompletesAnOrdinaryWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverDone <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	server := <-serverDone

	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	w, err := NewBulkWriter(1000, 100, nil)
	if err != nil {
		t.Fatalf("NewBulkWriter: %v", err)
	}
	go w.Run()
	defer w.Stop()

	errCh := make(chan error, 1)
	w.Enqueue(rawFd(t, server), []byte("hello"), func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		t.Fatalf("unexpected write error: %v", err)
	case <-time.After(500 * time.Millisecond):
		// no error callback fired within the window: success.
	}
}

// TestBulkWriterExpiresStalledWrite covers scenario S5: a peer that never
// reads causes the job to time out and the error callback to fire with a
// Timeout kind, within msBase + sizeMB*msPerMB of expiry.
func TestBulkWriterExpiresStalledWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverDone <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	server := <-serverDone

	w, err := NewBulkWriter(100, 10, nil)
	if err != nil {
		t.Fatalf("NewBulkWriter: %v", err)
	}
	go w.Run()
	defer w.Stop()

	payload := make([]byte, 10*1<<20) // 10 MB; client never reads it
	errCh := make(chan error, 1)
	start := time.Now()
	w.Enqueue(rawFd(t, server), payload, func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		if errs.KindOf(err) != errs.TimeoutKind {
			t.Fatalf("expected a Timeout error kind, got %v (%v)", errs.KindOf(err), err)
		}
		elapsed := time.Since(start)
		if elapsed > 2*time.Second {
			t.Fatalf("job took too long to expire: %v", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("write job never expired")
	}
}
