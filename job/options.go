package job

import "time"

// Options configures a single job at creation time. All fields are
// optional; the zero value means "use the queue's behavior for
// undelayed, unprioritized, single-attempt jobs".
type Options struct {
	// Priority orders entries in the priority sorted set consulted by
	// add(); lower scores are consumed first. Zero means unprioritized.
	Priority int64

	// Delay, when positive, routes the job into the delayed set scored
	// by release timestamp instead of directly into wait.
	Delay time.Duration

	// Attempts is the maximum number of times Retry may be called
	// before a caller should stop retrying and leave the job failed.
	// Zero means one attempt (no automatic retry).
	Attempts int

	// Backoff is stored with the job's options. Retry does not read it:
	// a retried job always goes straight back into wait.
	Backoff time.Duration

	// Timeout bounds how long a handler may run before the dispatcher
	// treats the job as failed. Zero means no timeout.
	Timeout time.Duration

	// RemoveOnComplete/RemoveOnFail: <= 0 retains the job hash after it
	// reaches a terminal state (until an explicit clean/remove); > 0
	// drops the hash in the same atomic script as the terminal move,
	// before the completed/failed event is emitted. completed/failed are unordered sets (§3), so
	// there is no "keep last N" distinction, only retain-or-drop.
	RemoveOnComplete int
	RemoveOnFail     int
}
