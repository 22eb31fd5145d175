package resq

import (
	"context"
	"time"
)

// QueueStore is the durable FIFO queue the core pushes payloads to and
// reserves them from. Pop must deliver a payload to exactly one caller.
type QueueStore interface {
	// Push appends the encoded payload to the named queue.
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop removes the head of the named queue, nil when the queue is empty.
	Pop(ctx context.Context, queue string) ([]byte, error)
	// BlockingPop waits up to timeout for any of the queues to yield a
	// payload and reports which queue it came from. A zero timeout blocks
	// indefinitely. All return values are zero when the wait timed out.
	BlockingPop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error)
	// GenerateID produces a fresh opaque job identifier.
	GenerateID(ctx context.Context) (string, error)
}

// StatusStore tracks per-job status keyed by payload id.
type StatusStore interface {
	// Create begins tracking id in StatusWaiting.
	Create(ctx context.Context, id string) error
	// Update stores a new status for id, a no-op when id is not tracked.
	Update(ctx context.Context, id string, status Status) error
	// Get returns the tracked status, false when id was never tracked.
	Get(ctx context.Context, id string) (Status, bool, error)
	IsTracking(ctx context.Context, id string) (bool, error)
}

// FailureRecorder persists one immutable record per failed execution,
// append-only.
type FailureRecorder interface {
	Record(ctx context.Context, payload *Payload, errMsg string, worker string, queue string) error
}

// Counters increments named monotonic counters ("processed", "failed", and
// their per-worker variants).
type Counters interface {
	Increment(ctx context.Context, name string) error
}
