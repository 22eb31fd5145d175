package resq

import (
	"context"
	stderr "errors"
	"time"

	"github.com/roadrunner-server/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithBus replaces the client's event bus. Useful when several clients
// must share one set of listeners.
func WithBus(b *Bus) Option {
	return func(c *Client) {
		c.bus = b
	}
}

// WithFactory replaces the default constructor Registry with a custom
// handler resolution strategy.
func WithFactory(f Factory) Option {
	return func(c *Client) {
		c.factory = f
	}
}

// WithStatusStore enables per-job status tracking.
func WithStatusStore(s StatusStore) Option {
	return func(c *Client) {
		c.statuses = s
	}
}

// WithFailureRecorder enables durable failure records.
func WithFailureRecorder(f FailureRecorder) Option {
	return func(c *Client) {
		c.failures = f
	}
}

// WithCounters enables the processed/failed counters.
func WithCounters(cnt Counters) Option {
	return func(c *Client) {
		c.counters = cnt
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp
	}
}

// Client binds the queue store and the optional collaborators together and
// is the entry point for creating and reserving jobs.
type Client struct {
	cfg      *Config
	store    QueueStore
	statuses StatusStore
	failures FailureRecorder
	counters Counters
	bus      *Bus
	factory  Factory
	log      *zap.Logger
	tracer   trace.TracerProvider
	metrics  *statsExporter
}

// New builds a Client on the given queue store. Status tracking, failure
// records and counters stay disabled until the matching option supplies a
// collaborator. The default factory is an empty Registry, replace it or
// register constructors on it before performing jobs.
func New(cfg *Config, store QueueStore, opts ...Option) (*Client, error) {
	const op = errors.Op("resq_client_new")

	if store == nil {
		return nil, errors.E(op, errors.Str("queue store is required"))
	}

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.InitDefaults()

	c := &Client{
		cfg:     cfg,
		store:   store,
		bus:     NewBus(),
		factory: NewRegistry(),
		log:     zap.NewNop(),
		metrics: newStatsExporter(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tracer == nil {
		// noop tracer
		c.tracer = sdktrace.NewTracerProvider()
	}

	return c, nil
}

// Bus returns the event bus listeners register on.
func (c *Client) Bus() *Bus {
	return c.bus
}

// Factory returns the handler factory, the default *Registry unless it was
// replaced via WithFactory.
func (c *Client) Factory() Factory {
	return c.factory
}

// EnqueueOption tunes a single Create/Enqueue call.
type EnqueueOption func(*enqueueOpts)

type enqueueOpts struct {
	id      string
	monitor bool
}

// WithJobID supplies the attempt id instead of generating one at the store.
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOpts) {
		o.id = id
	}
}

// WithTracking begins status tracking for the new id in StatusWaiting. The
// returned id is the sole handle for querying status later.
func WithTracking() EnqueueOption {
	return func(o *enqueueOpts) {
		o.monitor = true
	}
}

// Create validates args, pushes a payload onto queue and returns the id of
// the new attempt. args may be nil, a map, or a struct; anything else fails
// with ErrInvalidArgs before any store interaction.
func (c *Client) Create(ctx context.Context, queue, class string, args any, opts ...EnqueueOption) (string, error) {
	const op = errors.Op("resq_create")

	if queue == "" {
		return "", errors.E(op, errors.Str("queue name is required"))
	}
	if class == "" {
		return "", errors.E(op, errors.Str("job class is required"))
	}

	// the sentinel must stay visible to errors.Is at the caller
	rec, err := normalizeArgs(args)
	if err != nil {
		return "", err
	}

	eo := new(enqueueOpts)
	for _, o := range opts {
		o(eo)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*time.Duration(c.cfg.Timeout))
	defer cancel()

	id := eo.id
	if id == "" {
		id, err = c.store.GenerateID(ctx)
		if err != nil {
			return "", errors.E(op, err)
		}
	}

	p := &Payload{
		Class:     class,
		Args:      []map[string]any{rec},
		ID:        id,
		QueueTime: float64(time.Now().UnixMicro()) / 1e6,
	}

	data, err := p.encode()
	if err != nil {
		return "", errors.E(op, err)
	}

	err = c.store.Push(ctx, queue, data)
	if err != nil {
		c.metrics.CountPushErr()
		c.log.Error("job push error", zap.String("ID", id), zap.String("queue", queue), zap.String("class", class), zap.Error(err))
		return "", errors.E(op, err)
	}

	c.metrics.CountPushOk()

	if eo.monitor {
		if c.statuses == nil {
			c.log.Warn("status tracking requested without a status store", zap.String("ID", id))
		} else if err := c.statuses.Create(ctx, id); err != nil {
			return "", errors.E(op, err)
		}
	}

	c.log.Debug("job was pushed successfully", zap.String("ID", id), zap.String("queue", queue), zap.String("class", class))

	return id, nil
}

// Enqueue is Create wrapped in the beforeEnqueue/afterEnqueue hooks. A
// beforeEnqueue listener returning ErrDontCreate aborts the enqueue before
// anything is pushed; the sentinel is returned so callers can tell the
// aborted attempt apart from a store error. When an afterEnqueue listener
// errors the job is already queued, so the id is returned together with
// the error.
func (c *Client) Enqueue(ctx context.Context, queue, class string, args any, opts ...EnqueueOption) (string, error) {
	const op = errors.Op("resq_enqueue")

	rec, err := normalizeArgs(args)
	if err != nil {
		return "", err
	}

	eo := new(enqueueOpts)
	for _, o := range opts {
		o(eo)
	}

	id := eo.id
	if id == "" {
		id, err = c.store.GenerateID(ctx)
		if err != nil {
			return "", errors.E(op, err)
		}
	}

	err = c.bus.Trigger(EventBeforeEnqueue, class, rec, queue, id)
	if err != nil {
		if stderr.Is(err, ErrDontCreate) {
			c.log.Debug("enqueue was cancelled by a listener", zap.String("queue", queue), zap.String("class", class))
			return "", ErrDontCreate
		}
		return "", errors.E(op, err)
	}

	id, err = c.Create(ctx, queue, class, rec, append(opts, WithJobID(id))...)
	if err != nil {
		return "", errors.E(op, err)
	}

	err = c.bus.Trigger(EventAfterEnqueue, class, rec, queue, id)
	if err != nil {
		return id, errors.E(op, err)
	}

	return id, nil
}

// Reserve pops one payload from queue. Both return values are nil when the
// queue is empty.
func (c *Client) Reserve(ctx context.Context, queue string) (*Job, error) {
	const op = errors.Op("resq_reserve")

	data, err := c.store.Pop(ctx, queue)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if data == nil {
		return nil, nil
	}

	p, err := decodePayload(data)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return c.newJob(queue, p), nil
}

// ReserveBlocking waits up to timeout for any of queues to yield a payload
// and binds the Job to whichever queue yielded. Both return values are nil
// on timeout. A zero timeout blocks until a payload arrives or ctx is done;
// fairness across queues is owned by the store.
func (c *Client) ReserveBlocking(ctx context.Context, queues []string, timeout time.Duration) (*Job, error) {
	const op = errors.Op("resq_reserve_blocking")

	queue, data, err := c.store.BlockingPop(ctx, queues, timeout)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if data == nil {
		return nil, nil
	}

	p, err := decodePayload(data)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return c.newJob(queue, p), nil
}

func (c *Client) newJob(queue string, p *Payload) *Job {
	return &Job{client: c, queue: queue, payload: p}
}
