package eventlog

import (
	"context"
	"errors"
)

// EndOffsetEmpty is returned by EndOffset for a log with no events.
const EndOffsetEmpty int64 = -1

// ErrClosed is returned by Local's Append after Close.
var ErrClosed = errors.New("eventlog: log is closed")

// EventBatch is a contiguous, gap-free run of events delivered by
// Tail, in ascending offset order.
type EventBatch struct {
	Events []Event
}

// Log is the append-only, totally ordered command queue every
// deployment of the matcher core is built on. Implementations
// linearize concurrent Append calls; callers that need per-pair
// ordering downstream (everyone) must consume Tail single-threaded,
// which the orchestrator provides.
type Log interface {
	// Append durably persists e before returning, assigning it the
	// next offset and a log-local timestamp. It returns
	// *matchererr.MatcherError with KindCapacity if the producer's
	// buffer is full, or KindTransientInfrastructure on a retryable
	// failure.
	Append(ctx context.Context, e Event) (offset int64, timestamp int64, err error)

	// Tail streams events from fromOffset (inclusive) onward, batching
	// up to batchSize events or maxWait, whichever comes first. The
	// returned channel is closed when ctx is done; closing the log
	// does not close it. Each batch is gap-free and in ascending
	// offset order.
	Tail(ctx context.Context, fromOffset int64, batchSize int, maxWait int64) (<-chan EventBatch, error)

	// EndOffset returns the offset of the last appended event, or
	// EndOffsetEmpty if the log has never been appended to.
	EndOffset(ctx context.Context) (int64, error)

	// Close releases the log's resources. Local returns ErrClosed
	// from Append calls made after Close.
	Close() error
}
