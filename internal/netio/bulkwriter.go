package netio

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"synnergy-ledger/pkg/errs"
)

// writeJob is one outstanding framed response write.
type writeJob struct {
	fd       int
	buf      []byte
	offset   int
	expireAt time.Time
	onError  func(error)
}

// BulkWriter owns a set of write-jobs and its own readiness poller,
// watching for write-readiness (POLLOUT/EPOLLOUT) to drain each job's
// buffer without blocking the worker thread.
type BulkWriter struct {
	poller  Poller
	msBase  int64
	msPerMB int64
	log     *logrus.Logger

	mu   sync.Mutex
	jobs map[int]*writeJob

	stop     chan struct{}
	stopOnce sync.Once
}

// NewBulkWriter creates a BulkWriter whose per-job timeout is
// msBase + sizeMB*msPerMB.
func NewBulkWriter(msBase, msPerMB int64, log *logrus.Logger) (*BulkWriter, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	poller, err := newPoller(true)
	if err != nil {
		return nil, err
	}
	return &BulkWriter{
		poller:  poller,
		msBase:  msBase,
		msPerMB: msPerMB,
		log:     log,
		jobs:    make(map[int]*writeJob),
		stop:    make(chan struct{}),
	}, nil
}

// Enqueue registers data to be written to fd. onError (may be nil) is
// invoked at most once, on timeout or write failure; fd is always closed
// exactly once when the job finishes, succeeds, errors, or expires.
func (w *BulkWriter) Enqueue(fd int, data []byte, onError func(error)) {
	sizeMB := float64(len(data)) / float64(1<<20)
	timeout := time.Duration(w.msBase)*time.Millisecond + time.Duration(float64(w.msPerMB)*sizeMB*float64(time.Millisecond))
	job := &writeJob{fd: fd, buf: data, expireAt: time.Now().Add(timeout), onError: onError}

	w.mu.Lock()
	w.jobs[fd] = job
	w.mu.Unlock()

	if err := w.poller.Add(fd); err != nil {
		w.finish(job, err)
	}
}

// Run processes POLLOUT-style readiness events until Stop is called. When
// there are no jobs it sleeps briefly between polls to avoid busy-waiting.
func (w *BulkWriter) Run() {
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		w.mu.Lock()
		n := len(w.jobs)
		w.mu.Unlock()
		if n == 0 {
			time.Sleep(20 * time.Millisecond)
			w.expireStale()
			continue
		}

		ready, err := w.poller.Wait(50 * time.Millisecond)
		if err != nil {
			w.log.WithError(err).Warn("netio: bulkwriter poll failed")
			continue
		}
		for _, fd := range ready {
			w.tryWrite(fd)
		}
		w.expireStale()
	}
}

func (w *BulkWriter) tryWrite(fd int) {
	w.mu.Lock()
	job, ok := w.jobs[fd]
	w.mu.Unlock()
	if !ok {
		return
	}

	n, err := unix.Write(job.fd, job.buf[job.offset:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		w.finish(job, errs.IoErrorf(err, "bulk write"))
		return
	}
	job.offset += n
	if job.offset >= len(job.buf) {
		w.finish(job, nil)
	}
}

func (w *BulkWriter) expireStale() {
	now := time.Now()
	w.mu.Lock()
	var expired []*writeJob
	for fd, job := range w.jobs {
		if now.After(job.expireAt) {
			expired = append(expired, job)
			delete(w.jobs, fd)
		}
	}
	w.mu.Unlock()

	for _, job := range expired {
		w.poller.Remove(job.fd)
		if job.onError != nil {
			job.onError(errs.TimeoutError("bulk write job expired"))
		}
		unix.Close(job.fd)
	}
}

// finish removes job from the job set, unregisters it from the poller,
// invokes onError if err is non-nil, and closes fd exactly once.
func (w *BulkWriter) finish(job *writeJob, err error) {
	w.mu.Lock()
	delete(w.jobs, job.fd)
	w.mu.Unlock()

	w.poller.Remove(job.fd)
	if err != nil && job.onError != nil {
		job.onError(err)
	}
	unix.Close(job.fd)
}

// Stop ends Run and releases the poller.
func (w *BulkWriter) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.poller.Close()
}
