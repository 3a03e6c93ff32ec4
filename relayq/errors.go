package relayq

import "errors"

var (
	// ErrDuplicateHandler is returned by Process when a handler is
	// already installed; installing a second one is a programming error.
	ErrDuplicateHandler = errors.New("relayq: handler already installed")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("relayq: queue is closed")

	// ErrRedisVersionTooOld is emitted as an error event (and returned
	// from Ready) when the connected store reports a version below
	// minRedisVersion.
	ErrRedisVersionTooOld = errors.New("relayq: redis server version below minimum required")

	// ErrInvalidCleanType is returned by Clean for a collection name
	// that cannot hold terminal jobs.
	ErrInvalidCleanType = errors.New("relayq: invalid clean type")

	// ErrLockNotOwned names the condition of finalizing a job whose lock
	// this worker no longer holds (it was reaped). No function in this
	// package returns it.
	ErrLockNotOwned = errors.New("relayq: lock not owned")
)
