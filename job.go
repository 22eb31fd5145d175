package resq

import (
	"context"
	stderr "errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// Outcome is the three-way result of one perform pipeline run.
type Outcome uint8

const (
	// OutcomeCompleted - the handler and every hook ran to the end.
	OutcomeCompleted Outcome = iota

	// OutcomeCancelled - a listener or the handler returned ErrDontPerform.
	// The attempt is skipped, it is not a failure and leaves no status,
	// failure-record or counter side effects.
	OutcomeCancelled

	// OutcomeFailed - the pipeline surfaced an error. Perform does not
	// record it, the host loop is expected to call Fail.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one reserved unit of work bound to the queue it came from. Jobs
// are constructed by Client.Reserve/ReserveBlocking and executed
// synchronously on a single worker's goroutine.
type Job struct {
	client  *Client
	queue   string
	payload *Payload

	// worker is an opaque label set by the host loop, used only for
	// failure records and per-worker counters.
	worker string

	// instance is constructed at most once per Job and owned by it.
	instance Handler
}

// Queue returns the name of the queue this job was reserved from.
func (j *Job) Queue() string {
	return j.queue
}

// Payload returns the payload as received from the store. Callers must not
// mutate it.
func (j *Job) Payload() *Payload {
	return j.payload
}

func (j *Job) ID() string {
	if j.payload == nil {
		return ""
	}
	return j.payload.ID
}

func (j *Job) Class() string {
	if j.payload == nil {
		return ""
	}
	return j.payload.Class
}

// SetWorker labels the job with the identity of the worker that owns it.
func (j *Job) SetWorker(worker string) {
	j.worker = worker
}

func (j *Job) Worker() string {
	return j.worker
}

// Arguments returns the job arguments, an empty map when none were set.
func (j *Job) Arguments() map[string]any {
	if j.payload == nil || len(j.payload.Args) == 0 || j.payload.Args[0] == nil {
		return map[string]any{}
	}
	return j.payload.Args[0]
}

// handler resolves and caches the handler instance for this job.
func (j *Job) handler() (Handler, error) {
	if j.instance != nil {
		return j.instance, nil
	}

	h, err := j.client.factory.Create(j.Class(), j.Arguments(), j.queue)
	if err != nil {
		return nil, err
	}

	j.instance = h
	return h, nil
}

// Perform runs the execution pipeline:
//
//	beforePerform -> SetUp? -> Perform -> TearDown? -> afterPerform
//
// ErrDontPerform returned anywhere in the pipeline stops it at that point
// and yields OutcomeCancelled, with no side effects beyond the hooks that
// already ran. A class that cannot be resolved, or any other error, yields
// OutcomeFailed together with the error. Perform never records failures
// itself.
func (j *Job) Perform(ctx context.Context) (Outcome, error) {
	if err := j.client.bus.Trigger(EventBeforePerform, j); err != nil {
		return j.interrupt(err)
	}

	// resolution errors surface unwrapped so errors.Is(err, ErrUnknownClass)
	// keeps working at the host loop
	h, err := j.handler()
	if err != nil {
		return OutcomeFailed, err
	}

	if su, ok := h.(SetUpHandler); ok {
		if err := su.SetUp(ctx, j); err != nil {
			return j.interrupt(err)
		}
	}

	if err := h.Perform(ctx, j); err != nil {
		return j.interrupt(err)
	}

	if td, ok := h.(TearDownHandler); ok {
		if err := td.TearDown(ctx, j); err != nil {
			return j.interrupt(err)
		}
	}

	if err := j.client.bus.Trigger(EventAfterPerform, j); err != nil {
		return j.interrupt(err)
	}

	return OutcomeCompleted, nil
}

// interrupt folds a pipeline error into the cancellation signal or a
// failed outcome.
func (j *Job) interrupt(err error) (Outcome, error) {
	if stderr.Is(err, ErrDontPerform) {
		j.client.log.Debug("perform was cancelled", zap.String("ID", j.ID()), zap.String("queue", j.queue), zap.String("class", j.Class()))
		return OutcomeCancelled, nil
	}

	return OutcomeFailed, err
}

// Fail records a failed execution: it triggers onFailure, marks a tracked
// id failed, appends a failure record and bumps the global and per-worker
// failed counters. It never swallows cause and performs no retry; recording
// errors propagate to the caller.
func (j *Job) Fail(ctx context.Context, cause error) error {
	const op = errors.Op("resq_job_fail")

	if err := j.client.bus.Trigger(EventOnFailure, cause, j); err != nil {
		return errors.E(op, err)
	}

	if err := j.UpdateStatus(ctx, StatusFailed); err != nil {
		return errors.E(op, err)
	}

	if j.client.failures != nil {
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		if err := j.client.failures.Record(ctx, j.payload, msg, j.worker, j.queue); err != nil {
			return errors.E(op, err)
		}
	}

	if j.client.counters != nil {
		if err := j.client.counters.Increment(ctx, "failed"); err != nil {
			return errors.E(op, err)
		}
		if j.worker != "" {
			if err := j.client.counters.Increment(ctx, "failed:"+j.worker); err != nil {
				return errors.E(op, err)
			}
		}
	}

	j.client.log.Error("job failed", zap.String("ID", j.ID()), zap.String("queue", j.queue), zap.String("class", j.Class()), zap.Error(cause))

	return nil
}

// UpdateStatus forwards the new status for this job's id. No-op when the
// payload carries no id or no status store is configured; the store itself
// ignores updates for untracked ids.
func (j *Job) UpdateStatus(ctx context.Context, s Status) error {
	if j.ID() == "" || j.client.statuses == nil {
		return nil
	}

	return j.client.statuses.Update(ctx, j.ID(), s)
}

// Status reads the tracked status for this job's id. The boolean is false
// when the id was never tracked.
func (j *Job) Status(ctx context.Context) (Status, bool, error) {
	if j.ID() == "" || j.client.statuses == nil {
		return 0, false, nil
	}

	return j.client.statuses.Get(ctx, j.ID())
}

// Recreate queues a brand-new attempt with the same queue, class and
// current arguments under a freshly generated id, preserving the tracking
// preference of the current id. The old id's terminal status is left
// untouched.
func (j *Job) Recreate(ctx context.Context) (string, error) {
	const op = errors.Op("resq_job_recreate")

	opts := make([]EnqueueOption, 0, 1)
	if j.ID() != "" && j.client.statuses != nil {
		tracked, err := j.client.statuses.IsTracking(ctx, j.ID())
		if err != nil {
			return "", errors.E(op, err)
		}
		if tracked {
			opts = append(opts, WithTracking())
		}
	}

	id, err := j.client.Create(ctx, j.queue, j.Class(), j.Arguments(), opts...)
	if err != nil {
		return "", errors.E(op, err)
	}

	j.client.log.Debug("job was re-queued", zap.String("old ID", j.ID()), zap.String("ID", id), zap.String("queue", j.queue))

	return id, nil
}

// String renders a diagnostic line:
//
//	(Job{queue} | ID: 42 | Foo | [{"a":1}])
//
// The ID and args segments are omitted when absent, and the whole string is
// empty when the payload is.
func (j *Job) String() string {
	if j.payload == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "Job{"+j.queue+"}")

	if j.payload.ID != "" {
		parts = append(parts, "ID: "+j.payload.ID)
	}

	parts = append(parts, j.payload.Class)

	if len(j.Arguments()) > 0 {
		if args, err := json.Marshal(j.payload.Args); err == nil {
			parts = append(parts, string(args))
		}
	}

	return "(" + strings.Join(parts, " | ") + ")"
}
