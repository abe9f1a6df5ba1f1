package netio

import (
	"context"
	"io"
	"net"

	"synnergy-ledger/pkg/errs"
)

// Dial is the minimal outbound-connection capability this package needs from
// core.Dialer, kept as an interface so netio never imports core.
type Dial func(ctx context.Context, address string) (net.Conn, error)

// SendRequest opens one connection to addr, writes a single framed request,
// half-closes its write side, and reads the framed response to completion —
// the client half of the "one request, half-close, response, close"
// connection lifecycle. The connection is always closed before returning.
func SendRequest(ctx context.Context, dial Dial, addr string, version, reqType uint16, payload []byte) (ResponseEnvelope, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return ResponseEnvelope{}, errs.IoErrorf(err, "dial "+addr)
	}
	defer conn.Close()

	if _, err := conn.Write(EncodeRequest(version, reqType, payload)); err != nil {
		return ResponseEnvelope{}, errs.IoErrorf(err, "write request")
	}
	if half, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = half.CloseWrite()
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return ResponseEnvelope{}, errs.IoErrorf(err, "read response")
	}
	return DecodeResponse(raw)
}
