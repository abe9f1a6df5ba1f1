// Package errs declares the typed error kinds shared across the ledger,
// store, scheduler and request pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the request worker maps it to a wire
// errorCode.
type Kind int

const (
	Unknown Kind = iota
	Config
	IO
	Codec
	Store
	Validation
	Protocol
	TimeoutKind
	NotFound
	VersionMismatch
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case IO:
		return "IoError"
	case Codec:
		return "CodecError"
	case Store:
		return "StoreError"
	case Validation:
		return "ValidationError"
	case Protocol:
		return "ProtocolError"
	case TimeoutKind:
		return "Timeout"
	case NotFound:
		return "NotFoundError"
	case VersionMismatch:
		return "VersionMismatchError"
	default:
		return "Unknown"
	}
}

// Error is a typed, wrapped error. It supports errors.Is/As and errors.Unwrap.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// KindOf returns the error's classification, or Unknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

func newKind(k Kind, msg string, err error) *Error {
	return &Error{kind: k, msg: msg, err: err}
}

// New constructs a bare typed error without an underlying cause.
func New(k Kind, msg string) error { return newKind(k, msg, nil) }

// Wrap adds context and a kind to err. Returns nil if err is nil.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return newKind(k, msg, err)
}

func ConfigError(msg string) error                 { return New(Config, msg) }
func ConfigErrorf(err error, msg string) error     { return Wrap(Config, err, msg) }
func IoError(msg string) error                     { return New(IO, msg) }
func IoErrorf(err error, msg string) error         { return Wrap(IO, err, msg) }
func CodecError(msg string) error                  { return New(Codec, msg) }
func CodecErrorf(err error, msg string) error      { return Wrap(Codec, err, msg) }
func StoreError(msg string) error                  { return New(Store, msg) }
func StoreErrorf(err error, msg string) error      { return Wrap(Store, err, msg) }
func ValidationError(msg string) error             { return New(Validation, msg) }
func ValidationErrorf(err error, msg string) error { return Wrap(Validation, err, msg) }
func ProtocolError(msg string) error               { return New(Protocol, msg) }
func ProtocolErrorf(err error, msg string) error   { return Wrap(Protocol, err, msg) }
func TimeoutError(msg string) error                { return New(TimeoutKind, msg) }
func NotFoundError(msg string) error               { return New(NotFound, msg) }
func VersionMismatchError(msg string) error        { return New(VersionMismatch, msg) }

// WireCode maps a Kind to its wire error code: 0 success, 1 bad request,
// 2 not found, 3 version mismatch, 4 internal error, 5 timeout.
func WireCode(k Kind) uint16 {
	switch k {
	case Config, Protocol, Codec, Validation:
		return 1
	case NotFound:
		return 2
	case VersionMismatch:
		return 3
	case TimeoutKind:
		return 5
	case Store, IO, Unknown:
		return 4
	default:
		return 4
	}
}
