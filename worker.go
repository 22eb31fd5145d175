package resq

import (
	"context"
	stderr "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const spanName = "resq_worker"

// Worker is a single host loop: it reserves jobs from its queues and drives
// them through the perform/fail lifecycle. One job executes at a time on
// the worker's goroutine.
type Worker struct {
	id       string
	client   *Client
	queues   []string
	log      *zap.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWorker builds a worker consuming the given queues, or the configured
// default queues when none are passed. The id labels failure records and
// per-worker counters.
func (c *Client) NewWorker(id string, queues ...string) *Worker {
	if len(queues) == 0 {
		queues = c.cfg.Queues
	}
	if id == "" {
		id = workerID(queues, 0)
	}

	return &Worker{
		id:     id,
		client: c,
		queues: queues,
		log:    c.log,
		stopCh: make(chan struct{}),
	}
}

// ID returns the worker's identity label.
func (w *Worker) ID() string {
	return w.id
}

// Run blocks, reserving and performing jobs until Stop is called or ctx is
// cancelled. The blocking reserve is bounded by the configured interval so
// the stop channel is re-checked regularly.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Debug("worker started", zap.String("worker", w.id), zap.Strings("queues", w.queues))

	interval := time.Second * time.Duration(w.client.cfg.Interval)

	for {
		select {
		case <-w.stopCh:
			w.log.Debug("worker was stopped", zap.String("worker", w.id))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.client.ReserveBlocking(ctx, w.queues, interval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("reserve failed", zap.String("worker", w.id), zap.Error(err))
			// don't hammer an unavailable store
			time.Sleep(interval)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, job)
	}
}

// Stop signals the loop to exit once the in-flight job finishes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *Worker) process(ctx context.Context, job *Job) {
	start := time.Now().UTC()

	ctx, span := w.client.tracer.Tracer(spanName).Start(ctx, "perform", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	job.SetWorker(w.id)

	if err := job.UpdateStatus(ctx, StatusRunning); err != nil {
		w.log.Error("status update error", zap.String("ID", job.ID()), zap.Error(err))
	}

	outcome, err := job.Perform(ctx)
	w.client.metrics.ObservePerform(job.Queue(), job.Class(), time.Since(start).Seconds())

	switch outcome {
	case OutcomeCompleted:
		if errS := job.UpdateStatus(ctx, StatusComplete); errS != nil {
			w.log.Error("status update error", zap.String("ID", job.ID()), zap.Error(errS))
		}
		w.count(ctx, "processed")
		w.client.metrics.CountJobOk()
		w.log.Debug("job was processed successfully", zap.String("ID", job.ID()), zap.String("queue", job.Queue()), zap.Time("start", start), zap.Duration("elapsed", time.Since(start)))
	case OutcomeCancelled:
		w.client.metrics.CountJobCancelled()
		w.log.Debug("job was cancelled", zap.String("ID", job.ID()), zap.String("queue", job.Queue()), zap.Time("start", start), zap.Duration("elapsed", time.Since(start)))
	case OutcomeFailed:
		w.client.metrics.CountJobErr()
		w.log.Error("job processed with errors", zap.Error(err), zap.String("ID", job.ID()), zap.String("queue", job.Queue()), zap.Time("start", start), zap.Duration("elapsed", time.Since(start)))
		if errF := job.Fail(ctx, err); errF != nil {
			w.log.Error("failure recording error, the failure might be lost", zap.String("ID", job.ID()), zap.Error(errF))
		}
	}
}

// count bumps a global counter and its per-worker variant, logging instead
// of failing the loop when the store is unavailable.
func (w *Worker) count(ctx context.Context, name string) {
	if w.client.counters == nil {
		return
	}

	if err := w.client.counters.Increment(ctx, name); err != nil {
		w.log.Error("counter increment error", zap.String("counter", name), zap.Error(err))
	}
	if err := w.client.counters.Increment(ctx, name+":"+w.id); err != nil {
		w.log.Error("counter increment error", zap.String("counter", name+":"+w.id), zap.Error(err))
	}
}

func workerID(queues []string, n int) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	return fmt.Sprintf("%s:%d-%d:%s", host, os.Getpid(), n, strings.Join(queues, ","))
}

// Pool runs a fixed set of workers over the same queues.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	workers []*Worker
	errs    []error
	log     *zap.Logger
}

// NewPool builds cfg.NumWorkers workers consuming the given queues (the
// configured defaults when none are passed). Workers get distinct identity
// labels derived from host, pid and index.
func (c *Client) NewPool(queues ...string) *Pool {
	if len(queues) == 0 {
		queues = c.cfg.Queues
	}

	p := &Pool{
		workers: make([]*Worker, 0, c.cfg.NumWorkers),
		log:     c.log,
	}

	for i := 0; i < c.cfg.NumWorkers; i++ {
		p.workers = append(p.workers, c.NewWorker(workerID(queues, i), queues...))
	}

	return p
}

// Start launches every worker on its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()

			err := w.Run(ctx)
			if err != nil && !isCtxErr(err) {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		}(w)
	}
}

// Stop signals every worker and blocks until the in-flight jobs finish.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}

// Wait blocks until every worker loop has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Errors returns the loop errors collected so far and clears them.
func (p *Pool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := make([]error, len(p.errs))
	copy(errs, p.errs)
	p.errs = p.errs[:0]

	return errs
}

func isCtxErr(err error) bool {
	return stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded)
}
