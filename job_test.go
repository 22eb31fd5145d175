package resq

import (
	"context"
	"errors"
	"testing"
)

// lifecycleHandler records pipeline steps into a shared trace and fails or
// cancels on demand.
type lifecycleHandler struct {
	trace       *[]string
	setUpErr    error
	performErr  error
	tearDownErr error
}

func (h *lifecycleHandler) SetUp(context.Context, *Job) error {
	*h.trace = append(*h.trace, "setUp")
	return h.setUpErr
}

func (h *lifecycleHandler) Perform(context.Context, *Job) error {
	*h.trace = append(*h.trace, "perform")
	return h.performErr
}

func (h *lifecycleHandler) TearDown(context.Context, *Job) error {
	*h.trace = append(*h.trace, "tearDown")
	return h.tearDownErr
}

// reserveOne creates one job on queue "q" and reserves it back.
func reserveOne(t *testing.T, env *testEnv, class string, args any, opts ...EnqueueOption) *Job {
	t.Helper()

	ctx := context.Background()
	if _, err := env.client.Create(ctx, "q", class, args, opts...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, err := env.client.Reserve(ctx, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	return job
}

func TestPerformPipelineOrder(t *testing.T) {
	env := newTestEnv(t)

	var trace []string
	env.registry(t).Register("L", func(map[string]any, string) (Handler, error) {
		return &lifecycleHandler{trace: &trace}, nil
	})
	env.client.Bus().Listen(EventBeforePerform, func(_ ...any) error {
		trace = append(trace, "beforePerform")
		return nil
	})
	env.client.Bus().Listen(EventAfterPerform, func(_ ...any) error {
		trace = append(trace, "afterPerform")
		return nil
	})

	job := reserveOne(t, env, "L", nil)

	outcome, err := job.Perform(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("unexpected outcome, got %v, want %v", outcome, OutcomeCompleted)
	}

	want := []string{"beforePerform", "setUp", "perform", "tearDown", "afterPerform"}
	if len(trace) != len(want) {
		t.Fatalf("unexpected pipeline trace: %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("unexpected pipeline trace, got %v, want %v", trace, want)
		}
	}
}

func TestPerformCancelledByHandler(t *testing.T) {
	env := newTestEnv(t)

	var trace []string
	env.registry(t).Register("L", func(map[string]any, string) (Handler, error) {
		return &lifecycleHandler{trace: &trace, performErr: ErrDontPerform}, nil
	})

	beforeRan := false
	afterRan := false
	env.client.Bus().Listen(EventBeforePerform, func(_ ...any) error {
		beforeRan = true
		return nil
	})
	env.client.Bus().Listen(EventAfterPerform, func(_ ...any) error {
		afterRan = true
		return nil
	})

	job := reserveOne(t, env, "L", nil, WithTracking())

	outcome, err := job.Perform(context.Background())
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("unexpected outcome, got %v, want %v", outcome, OutcomeCancelled)
	}

	if !beforeRan {
		t.Fatal("beforePerform already ran and must stay observable")
	}
	if afterRan {
		t.Fatal("afterPerform must not fire for a cancelled job")
	}

	// no status, failure-record or counter side effects
	st, _, err := job.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != StatusWaiting {
		t.Fatalf("cancellation must not touch the status, got %v", st)
	}
	if env.failures.count() != 0 {
		t.Fatalf("cancellation must not record failures, got %d", env.failures.count())
	}
	if env.counters.total() != 0 {
		t.Fatalf("cancellation must not bump counters, got %d", env.counters.total())
	}

	// teardown is skipped once perform cancels
	for _, step := range trace {
		if step == "tearDown" {
			t.Fatalf("tearDown must not run after cancellation, trace: %v", trace)
		}
	}
}

func TestPerformCancelledByBeforeListener(t *testing.T) {
	env := newTestEnv(t)

	var trace []string
	env.registry(t).Register("L", func(map[string]any, string) (Handler, error) {
		return &lifecycleHandler{trace: &trace}, nil
	})
	env.client.Bus().Listen(EventBeforePerform, func(_ ...any) error {
		return ErrDontPerform
	})

	job := reserveOne(t, env, "L", nil)

	outcome, err := job.Perform(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("unexpected outcome, got %v, want %v", outcome, OutcomeCancelled)
	}
	if len(trace) != 0 {
		t.Fatalf("the handler must not run at all, trace: %v", trace)
	}
}

func TestPerformListenerErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("listener blew up")

	env.registry(t).Register("L", func(map[string]any, string) (Handler, error) {
		var trace []string
		return &lifecycleHandler{trace: &trace}, nil
	})
	env.client.Bus().Listen(EventBeforePerform, func(_ ...any) error {
		return boom
	})

	job := reserveOne(t, env, "L", nil)

	outcome, err := job.Perform(context.Background())
	if outcome != OutcomeFailed {
		t.Fatalf("unexpected outcome, got %v, want %v", outcome, OutcomeFailed)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the listener error to surface, got %v", err)
	}
}

func TestPerformUnknownClass(t *testing.T) {
	env := newTestEnv(t)

	job := reserveOne(t, env, "Unregistered", nil)

	outcome, err := job.Perform(context.Background())
	if outcome != OutcomeFailed {
		t.Fatalf("unexpected outcome, got %v, want %v", outcome, OutcomeFailed)
	}
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestPerformConstructsHandlerOnce(t *testing.T) {
	env := newTestEnv(t)

	constructed := 0
	env.registry(t).Register("L", func(map[string]any, string) (Handler, error) {
		constructed++
		return HandlerFunc(func(context.Context, *Job) error { return nil }), nil
	})

	job := reserveOne(t, env, "L", nil)
	ctx := context.Background()

	if _, err := job.Perform(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := job.Perform(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if constructed != 1 {
		t.Fatalf("the handler must be constructed at most once per job, got %d", constructed)
	}
}

func TestFail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cause := errors.New("handler exploded")

	var order []string
	env.client.Bus().Listen(EventOnFailure, func(args ...any) error {
		order = append(order, "onFailure")
		if !errors.Is(args[0].(error), cause) {
			t.Errorf("onFailure must carry the cause, got %v", args[0])
		}
		if _, ok := args[1].(*Job); !ok {
			t.Errorf("onFailure must carry the job, got %T", args[1])
		}
		return nil
	})

	job := reserveOne(t, env, "L", map[string]any{"a": 1}, WithTracking())
	job.SetWorker("w1")

	if err := job.Fail(ctx, cause); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 1 {
		t.Fatal("onFailure must fire exactly once")
	}
	if env.failures.count() != 1 {
		t.Fatalf("expected one failure record, got %d", env.failures.count())
	}

	rec := env.failures.last()
	if rec.worker != "w1" || rec.queue != "q" || rec.errMsg != cause.Error() {
		t.Fatalf("unexpected failure record: %+v", rec)
	}
	if rec.payload.ID != job.ID() {
		t.Fatalf("failure record bound to the wrong payload: %+v", rec.payload)
	}

	if got := env.counters.get("failed"); got != 1 {
		t.Fatalf("global failed counter, got %d, want 1", got)
	}
	if got := env.counters.get("failed:w1"); got != 1 {
		t.Fatalf("per-worker failed counter, got %d, want 1", got)
	}

	st, ok, err := job.Status(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || st != StatusFailed {
		t.Fatalf("expected a tracked FAILED status, got %v (tracked=%v)", st, ok)
	}
}

func TestFailUntrackedLeavesNoStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := reserveOne(t, env, "L", nil)
	job.SetWorker("w1")

	if err := job.Fail(ctx, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok, _ := job.Status(ctx); ok {
		t.Fatal("an untracked id must stay untracked after Fail")
	}
	if env.failures.count() != 1 {
		t.Fatalf("the failure must still be recorded, got %d records", env.failures.count())
	}
}

func TestRecreatePreservesTracking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := reserveOne(t, env, "L", map[string]any{"a": 1}, WithTracking())

	newID, err := job.Recreate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newID == job.ID() {
		t.Fatalf("recreate must generate a fresh id, both are %q", newID)
	}

	tracked, err := env.statuses.IsTracking(ctx, newID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tracked {
		t.Fatal("the new attempt must inherit tracking")
	}

	// the requeued payload carries the same class and args
	requeued, err := env.client.Reserve(ctx, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requeued == nil {
		t.Fatal("expected the requeued job")
	}
	if requeued.Class() != job.Class() {
		t.Fatalf("unexpected class, got %q, want %q", requeued.Class(), job.Class())
	}
	if got, want := requeued.Arguments()["a"], float64(1); got != want {
		t.Fatalf("unexpected args, got %v, want %v", got, want)
	}
}

func TestRecreateUntrackedStaysUntracked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := reserveOne(t, env, "L", nil)

	newID, err := job.Recreate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tracked, err := env.statuses.IsTracking(ctx, newID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracked {
		t.Fatal("an untracked job must recreate untracked")
	}
}

func TestUpdateStatusWithoutID(t *testing.T) {
	env := newTestEnv(t)

	job := env.client.newJob("q", &Payload{Class: "C"})
	if err := job.UpdateStatus(context.Background(), StatusRunning); err != nil {
		t.Fatalf("expected a no-op, got %v", err)
	}
}

func TestJobString(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		payload *Payload
		want    string
	}{
		{
			name:    "full payload",
			payload: &Payload{ID: "42", Class: "Foo", Args: []map[string]any{{"a": 1}}},
			want:    `(Job{q} | ID: 42 | Foo | [{"a":1}])`,
		},
		{
			name:    "no id",
			payload: &Payload{Class: "Foo", Args: []map[string]any{{"a": 1}}},
			want:    `(Job{q} | Foo | [{"a":1}])`,
		},
		{
			name:    "no args",
			payload: &Payload{ID: "42", Class: "Foo"},
			want:    `(Job{q} | ID: 42 | Foo)`,
		},
		{
			name:    "empty payload",
			payload: nil,
			want:    "",
		},
	}

	for i := range tests {
		t.Run(tests[i].name, func(t *testing.T) {
			job := env.client.newJob("q", tests[i].payload)
			if got := job.String(); got != tests[i].want {
				t.Fatalf("unexpected string, got %q, want %q", got, tests[i].want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeCompleted, "completed"},
		{OutcomeCancelled, "cancelled"},
		{OutcomeFailed, "failed"},
		{Outcome(42), "unknown"},
	}

	for i := range tests {
		if got := tests[i].outcome.String(); got != tests[i].want {
			t.Errorf("unexpected string for %d, got %q, want %q", uint8(tests[i].outcome), got, tests[i].want)
		}
	}
}
