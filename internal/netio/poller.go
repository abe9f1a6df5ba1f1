// Package netio implements the non-blocking request pipeline: a
// readiness-polled TCP listener, a thread-safe RequestQueue, a type-keyed
// Dispatcher, and a BulkWriter with per-job byte-rate timeouts. The three
// Poller implementations (epoll, kqueue, generic poll) give the listener
// and the BulkWriter their own platform-appropriate readiness source,
// selected at build time.
package netio

import "time"

// Poller watches a set of file descriptors for a single readiness
// condition (all-readable or all-writable, never mixed) and reports
// which ones became ready on each Wait call.
type Poller interface {
	// Add registers fd for readiness notifications.
	Add(fd int) error
	// Remove deregisters fd. It is not an error to remove an fd that was
	// never added or was already removed.
	Remove(fd int) error
	// Wait blocks up to timeout for at least one registered fd to become
	// ready, returning the ready set. A zero-length, nil-error result
	// means the wait budget elapsed with nothing ready.
	Wait(timeout time.Duration) ([]int, error)
	// Close releases the poller's own kernel resources (epoll/kqueue fd).
	Close() error
}
