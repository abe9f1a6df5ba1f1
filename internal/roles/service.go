package roles

import (
	"github.com/sirupsen/logrus"

	"synnergy-ledger/internal/netio"
)

// Service wires one role's TCP listener, request queue, dispatcher, and
// bulk writer together.
// The poller/acceptor runs on the caller's goroutine via Run; the worker and
// bulk-writer each get their own.
type Service struct {
	listener   *netio.TcpListener
	queue      *netio.RequestQueue
	dispatcher *netio.Dispatcher
	writer     *netio.BulkWriter
	log        *logrus.Logger
}

// ServiceConfig parameterizes a Service's listener and bulk-writer timing.
type ServiceConfig struct {
	Host         string
	Port         int
	WriteMsBase  int64
	WriteMsPerMB int64
}

// NewService builds a Service bound to host:port, ready for handlers to be
// Registered before Run is called.
func NewService(cfg ServiceConfig, log *logrus.Logger) (*Service, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	queue := netio.NewRequestQueue()
	writer, err := netio.NewBulkWriter(cfg.WriteMsBase, cfg.WriteMsPerMB, log)
	if err != nil {
		return nil, err
	}
	dispatcher := netio.NewDispatcher(netio.ProtocolVersion, log)
	listener, err := netio.NewTcpListener(cfg.Host, cfg.Port, queue, log)
	if err != nil {
		writer.Stop()
		return nil, err
	}
	return &Service{listener: listener, queue: queue, dispatcher: dispatcher, writer: writer, log: log}, nil
}

// Register installs the handler for a request type.
func (s *Service) Register(reqType uint16, h netio.HandlerFunc) { s.dispatcher.Register(reqType, h) }

// Run starts the worker and bulk-writer threads, then blocks running the
// poller/acceptor loop until Stop is called.
func (s *Service) Run() {
	go s.writer.Run()
	go s.dispatcher.Run(s.queue, s.writer)
	s.listener.Serve()
}

// Stop signals every owned thread to wind down.
func (s *Service) Stop() {
	s.listener.Stop()
	s.queue.Close()
	s.writer.Stop()
}

// Close releases the listener's socket and poller after Stop.
func (s *Service) Close() error {
	s.Stop()
	return s.listener.Close()
}
