package core

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialerConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	d := NewDialer(2*time.Second, 0)
	conn, err := d.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()
}

func TestDialerTimeoutOnUnreachableAddress(t *testing.T) {
	d := NewDialer(50*time.Millisecond, 0)
	// RFC 5737 TEST-NET-1 address, reserved and non-routable.
	if _, err := d.Dial(context.Background(), "192.0.2.1:81"); err == nil {
		t.Fatalf("expected dial to an unreachable address to fail")
	}
}
