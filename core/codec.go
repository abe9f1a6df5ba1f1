package core

// codec.go implements the deterministic big-endian wire/disk codec. Every
// primitive is fixed-width big-endian; byte strings and strings carry a u64
// length prefix; ordered containers are length-prefixed by element count.
// Records declare their own field order by implementing Encodable/Decodable
// rather than relying on reflection.

import (
	"bytes"
	"encoding/binary"
	"io"

	"synnergy-ledger/pkg/errs"
)

// Encodable is implemented by any record with a fixed, self-declared field
// order (the "serialize(ar)" convention).
type Encodable interface {
	EncodeTo(w *Writer) error
}

// Decodable is the fallible counterpart of Encodable.
type Decodable interface {
	DecodeFrom(r *Reader) error
}

// Writer accumulates a big-endian encoded byte stream.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteBytes writes a u64 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU64(uint64(len(b)))
	w.buf.Write(b)
}

func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// WriteFixed writes a fixed-size array verbatim, with no length prefix —
// used for hashes (bytes32) whose size is already part of the wire contract.
func (w *Writer) WriteFixed(b []byte) { w.buf.Write(b) }

// WriteContainer writes the element count followed by each element encoded
// with fn, preserving the original order.
func WriteContainer[T any](w *Writer, items []T, fn func(*Writer, T)) {
	w.WriteU64(uint64(len(items)))
	for _, it := range items {
		fn(w, it)
	}
}

// Reader consumes a big-endian encoded byte stream, reporting the first
// short read as a CodecError.
type Reader struct {
	r *bytes.Reader
}

func NewReader(b []byte) *Reader { return &Reader{r: bytes.NewReader(b)} }

func (r *Reader) Remaining() int { return r.r.Len() }

func (r *Reader) readN(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, errs.CodecErrorf(err, "short read")
	}
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.readN(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	// Guard against a corrupt/hostile length prefix driving an enormous
	// allocation before the short-read check below would fire.
	if int64(n) > int64(r.r.Len()) {
		return nil, errs.CodecError("length prefix exceeds remaining input")
	}
	return r.readN(int(n))
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

func (r *Reader) ReadFixed(n int) ([]byte, error) { return r.readN(n) }

// ReadContainer reads a u64 element count followed by each element decoded
// with fn.
func ReadContainer[T any](r *Reader, fn func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.r.Len()) {
		return nil, errs.CodecError("container count exceeds remaining input")
	}
	out := make([]T, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := fn(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode serializes any Encodable record to bytes.
func Encode(e Encodable) ([]byte, error) {
	w := NewWriter()
	if err := e.EncodeTo(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode deserializes a Decodable record from bytes.
func Decode(b []byte, d Decodable) error {
	r := NewReader(b)
	return d.DecodeFrom(r)
}
