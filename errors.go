package resq

import "errors"

// Control and validation signals surfaced by the core. These are plain
// sentinels so callers can test them with errors.Is.
var (
	// ErrDontPerform cancels the perform pipeline when returned by a
	// beforePerform listener, SetUp, Perform or TearDown. Job.Perform
	// absorbs it into OutcomeCancelled, it is never treated as a failure.
	ErrDontPerform = errors.New("resq: do not perform")

	// ErrDontCreate aborts Enqueue when returned by a beforeEnqueue
	// listener. Nothing is pushed to the store.
	ErrDontCreate = errors.New("resq: do not create")

	// ErrInvalidArgs is returned by Create/Enqueue when args is neither
	// absent nor a structured record.
	ErrInvalidArgs = errors.New("resq: job args must be a map or a struct")

	// ErrUnknownClass is returned by the default Registry when a payload
	// class has no registered constructor.
	ErrUnknownClass = errors.New("resq: unknown job class")
)
