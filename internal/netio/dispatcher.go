package netio

import (
	"sync"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/pkg/errs"
)

// HandlerFunc is a pure function of a request's payload to a response
// payload or an error. Role-state is closed over by the concrete handler,
// not threaded through this signature.
type HandlerFunc func(payload []byte) ([]byte, error)

// Dispatcher is the worker's static type -> handler table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]HandlerFunc
	version  uint16
	log      *logrus.Logger
}

func NewDispatcher(version uint16, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{handlers: make(map[uint16]HandlerFunc), version: version, log: log}
}

// Register installs the handler for a request type, replacing any existing
// one.
func (d *Dispatcher) Register(reqType uint16, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[reqType] = h
}

// Dispatch decodes raw, checks the envelope version, looks up the handler,
// and encodes the response envelope. It never panics: any
// handler error is mapped to an errorCode via pkg/errs.WireCode, and a
// handler panic is recovered and answered with the internal-error code.
func (d *Dispatcher) Dispatch(raw []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("netio: handler panicked")
			out = EncodeResponse(d.version, errs.WireCode(errs.Unknown), nil)
		}
	}()
	env, err := DecodeRequest(raw)
	if err != nil {
		return EncodeResponse(d.version, errs.WireCode(errs.KindOf(err)), nil)
	}
	if env.Version != d.version {
		return EncodeResponse(d.version, errs.WireCode(errs.VersionMismatch), nil)
	}

	d.mu.RLock()
	h, ok := d.handlers[env.Type]
	d.mu.RUnlock()
	if !ok {
		return EncodeResponse(d.version, errs.WireCode(errs.Protocol), nil)
	}

	resp, err := h(env.Payload)
	if err != nil {
		return EncodeResponse(d.version, errs.WireCode(errs.KindOf(err)), nil)
	}
	return EncodeResponse(d.version, 0, resp)
}

// Run pops items from queue until it is closed, dispatching each and
// handing the encoded response to writer.
func (d *Dispatcher) Run(queue *RequestQueue, writer *BulkWriter) {
	for {
		item, ok := queue.Pop()
		if !ok {
			return
		}
		resp := d.Dispatch(item.Payload)
		writer.Enqueue(item.Conn.Fd, resp, func(err error) {
			d.log.WithFields(logrus.Fields{"connId": item.Conn.ID, "err": err}).
				Warn("netio: response write failed")
		})
	}
}
