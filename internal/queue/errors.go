package queue

import "errors"

var (
	// ErrQueueUnavailable means the table cannot be reached or the credentials
	// were rejected. A worker must not continue without a working queue.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrQueueSchema means a row, column, sheet or table does not exist or
	// does not have the expected shape.
	ErrQueueSchema = errors.New("queue schema error")
	// ErrRateLimited means the backend throttled the request. Retrying after a
	// pause is safe: reads are re-done and writes are plain overwrites.
	ErrRateLimited = errors.New("queue rate limited")
)

// Fatal reports whether err must abort the whole run.
func Fatal(err error) bool {
	return errors.Is(err, ErrQueueUnavailable) || errors.Is(err, ErrQueueSchema)
}
