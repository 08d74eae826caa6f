// Package netpoll wraps the OS readiness notification and raw socket calls
// used by the relay event loop.
package netpoll

import "errors"

// Poller - registry of file descriptors watched for read readiness.
// Notifications are level-triggered: fd stays registered and keeps reporting
// until it is removed. Poller is not safe for concurrent use.
type Poller interface {
	// Add - starts watching fd for read readiness.
	Add(fd int) error
	// Remove - stops watching fd.
	Remove(fd int) error
	// Wait - blocks until at least one fd is ready and returns no more than batch of them.
	// Returned slice is reused by the next call.
	// Interrupted wait returns empty slice and nil error.
	Wait(batch int) ([]int, error)
	// Close - releases the poller.
	Close() error
}

// Factory - builds Poller.
type Factory func() (Poller, error)

// ErrInvalidBatch - returned by Wait for non-positive batch size.
var ErrInvalidBatch = errors.New("netpoll: batch size must be greater than 0")

// NewPoller - builds the best Poller for the current OS.
func NewPoller() (Poller, error) {
	return defaultPoller()
}
