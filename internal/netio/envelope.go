package netio

import (
	"encoding/binary"

	"synnergy-ledger/pkg/errs"
)

// ProtocolVersion is the envelope version this build speaks.
const ProtocolVersion uint16 = 1

// Request type codes.
const (
	ReqStatus               uint16 = 1
	ReqBlockGet             uint16 = 2
	ReqBlockAdd             uint16 = 3
	ReqAccountGet           uint16 = 4
	ReqTxAdd                uint16 = 5
	ReqTxGetByWallet        uint16 = 6
	ReqRegister             uint16 = 7
	ReqStakeholderList      uint16 = 8
	ReqConsensusCurrentSlot uint16 = 9
)

// RequestEnvelope is the decoded `[version u16][type u16][payload bytes]`
// wire request.
type RequestEnvelope struct {
	Version uint16
	Type    uint16
	Payload []byte
}

// DecodeRequest parses a raw request buffer into its envelope.
func DecodeRequest(raw []byte) (RequestEnvelope, error) {
	if len(raw) < 4 {
		return RequestEnvelope{}, errs.CodecError("request shorter than the 4-byte envelope header")
	}
	return RequestEnvelope{
		Version: binary.BigEndian.Uint16(raw[0:2]),
		Type:    binary.BigEndian.Uint16(raw[2:4]),
		Payload: raw[4:],
	}, nil
}

// EncodeResponse builds the raw `[version u16][errorCode u16][payload bytes]`
// wire response.
func EncodeResponse(version, errorCode uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], version)
	binary.BigEndian.PutUint16(buf[2:4], errorCode)
	copy(buf[4:], payload)
	return buf
}

// EncodeRequest builds the raw `[version u16][type u16][payload bytes]` wire
// request, the client-side counterpart of DecodeRequest.
func EncodeRequest(version, reqType uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], version)
	binary.BigEndian.PutUint16(buf[2:4], reqType)
	copy(buf[4:], payload)
	return buf
}

// ResponseEnvelope is the decoded `[version u16][errorCode u16][payload]`
// wire response, the client-side counterpart of RequestEnvelope.
type ResponseEnvelope struct {
	Version   uint16
	ErrorCode uint16
	Payload   []byte
}

// DecodeResponse parses a raw response buffer into its envelope.
func DecodeResponse(raw []byte) (ResponseEnvelope, error) {
	if len(raw) < 4 {
		return ResponseEnvelope{}, errs.CodecError("response shorter than the 4-byte envelope header")
	}
	return ResponseEnvelope{
		Version:   binary.BigEndian.Uint16(raw[0:2]),
		ErrorCode: binary.BigEndian.Uint16(raw[2:4]),
		Payload:   raw[4:],
	}, nil
}
