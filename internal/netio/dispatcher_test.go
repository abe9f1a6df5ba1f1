package netio

import (
	"testing"

	"synnergy-ledger/pkg/errs"
)

func buildRequest(version, reqType uint16, payload []byte) []byte {
	raw := make([]byte, 4+len(payload))
	raw[0], raw[1] = byte(version>>8), byte(version)
	raw[2], raw[3] = byte(reqType>>8), byte(reqType)
	copy(raw[4:], payload)
	return raw
}

func TestDispatcherRoutesRegisteredHandler(t *testing.T) {
	d := NewDispatcher(ProtocolVersion, nil)
	d.Register(ReqStatus, func(payload []byte) ([]byte, error) {
		return []byte("ok"), nil
	})

	resp := d.Dispatch(buildRequest(ProtocolVersion, ReqStatus, nil))
	env, err := DecodeRequest(resp) // response shares the same 4-byte header shape
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Type != 0 { // errorCode lives where Type would in a request
		t.Fatalf("errorCode=%d want 0", env.Type)
	}
	if string(env.Payload) != "ok" {
		t.Fatalf("payload=%q want %q", env.Payload, "ok")
	}
}

// TestDispatcherUnknownRequestType covers scenario S6: an unknown request
// type yields errorCode 1 ("bad request").
func TestDispatcherUnknownRequestType(t *testing.T) {
	d := NewDispatcher(ProtocolVersion, nil)
	resp := d.Dispatch(buildRequest(ProtocolVersion, 0xFFFF, nil))
	env, err := DecodeRequest(resp)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Type != errs.WireCode(errs.Protocol) {
		t.Fatalf("errorCode=%d want %d", env.Type, errs.WireCode(errs.Protocol))
	}
}

func TestDispatcherVersionMismatch(t *testing.T) {
	d := NewDispatcher(ProtocolVersion, nil)
	d.Register(ReqStatus, func([]byte) ([]byte, error) { return nil, nil })
	resp := d.Dispatch(buildRequest(ProtocolVersion+1, ReqStatus, nil))
	env, err := DecodeRequest(resp)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Type != errs.WireCode(errs.VersionMismatch) {
		t.Fatalf("errorCode=%d want %d", env.Type, errs.WireCode(errs.VersionMismatch))
	}
}

func TestDispatcherHandlerErrorMapsToErrorCode(t *testing.T) {
	d := NewDispatcher(ProtocolVersion, nil)
	d.Register(ReqBlockGet, func([]byte) ([]byte, error) {
		return nil, errs.NotFoundError("no such block")
	})
	resp := d.Dispatch(buildRequest(ProtocolVersion, ReqBlockGet, nil))
	env, err := DecodeRequest(resp)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Type != errs.WireCode(errs.NotFound) {
		t.Fatalf("errorCode=%d want %d", env.Type, errs.WireCode(errs.NotFound))
	}
}
