package redisstore

import (
	"context"
	stderr "errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/roadrunner-server/errors"

	"github.com/resq-go/resq"
)

// Compile-time contract checks.
var (
	_ resq.QueueStore      = (*Store)(nil)
	_ resq.StatusStore     = (*Store)(nil)
	_ resq.FailureRecorder = (*Store)(nil)
	_ resq.Counters        = (*Store)(nil)
)

// statusTTL bounds how long a terminal status is kept, matching the
// retention the other clients of the store expect.
const statusTTL = 24 * time.Hour

// Option configures the Store.
type Option func(*Store)

// WithNamespace overrides the default "resq:" key prefix.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns == "" {
			return
		}
		if !strings.HasSuffix(ns, ":") {
			ns += ":"
		}
		s.ns = ns
	}
}

// Store implements resq.QueueStore, resq.StatusStore, resq.FailureRecorder
// and resq.Counters on one Redis client.
type Store struct {
	client redis.Cmdable
	ns     string
}

// New builds a Store on the given client. The caller owns the client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, ns: "resq:"}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Push(ctx context.Context, queue string, payload []byte) error {
	const op = errors.Op("redisstore_push")

	// track the queue name for introspection, then append
	err := s.client.SAdd(ctx, s.queuesKey(), queue).Err()
	if err != nil {
		return errors.E(op, err)
	}

	err = s.client.RPush(ctx, s.queueKey(queue), payload).Err()
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

func (s *Store) Pop(ctx context.Context, queue string) ([]byte, error) {
	const op = errors.Op("redisstore_pop")

	data, err := s.client.LPop(ctx, s.queueKey(queue)).Bytes()
	if err != nil {
		if stderr.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.E(op, err)
	}

	return data, nil
}

func (s *Store) BlockingPop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	const op = errors.Op("redisstore_blocking_pop")

	keys := make([]string, len(queues))
	for i := range queues {
		keys[i] = s.queueKey(queues[i])
	}

	// res[0] is the yielding key, res[1] the payload
	res, err := s.client.BLPop(ctx, timeout, keys...).Result()
	if err != nil {
		if stderr.Is(err, redis.Nil) {
			return "", nil, nil
		}
		return "", nil, errors.E(op, err)
	}

	return strings.TrimPrefix(res[0], s.ns+"queue:"), []byte(res[1]), nil
}

func (s *Store) GenerateID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Queues lists every queue that has ever been pushed to.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	const op = errors.Op("redisstore_queues")

	out, err := s.client.SMembers(ctx, s.queuesKey()).Result()
	if err != nil {
		return nil, errors.E(op, err)
	}

	return out, nil
}

// statusRecord is the JSON value stored per tracked id.
type statusRecord struct {
	Status  int   `json:"status"`
	Updated int64 `json:"updated"`
	Started int64 `json:"started,omitempty"`
}

func (s *Store) Create(ctx context.Context, id string) error {
	const op = errors.Op("redisstore_status_create")

	now := time.Now().Unix()
	data, err := json.Marshal(&statusRecord{Status: int(resq.StatusWaiting), Updated: now, Started: now})
	if err != nil {
		return errors.E(op, err)
	}

	err = s.client.Set(ctx, s.statusKey(id), data, 0).Err()
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

func (s *Store) Update(ctx context.Context, id string, status resq.Status) error {
	const op = errors.Op("redisstore_status_update")

	tracked, err := s.IsTracking(ctx, id)
	if err != nil {
		return errors.E(op, err)
	}
	if !tracked {
		return nil
	}

	data, err := json.Marshal(&statusRecord{Status: int(status), Updated: time.Now().Unix()})
	if err != nil {
		return errors.E(op, err)
	}

	// terminal statuses expire instead of accumulating forever
	ttl := time.Duration(0)
	if status.Terminal() {
		ttl = statusTTL
	}

	err = s.client.Set(ctx, s.statusKey(id), data, ttl).Err()
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (resq.Status, bool, error) {
	const op = errors.Op("redisstore_status_get")

	data, err := s.client.Get(ctx, s.statusKey(id)).Bytes()
	if err != nil {
		if stderr.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, errors.E(op, err)
	}

	rec := new(statusRecord)
	err = json.Unmarshal(data, rec)
	if err != nil {
		return 0, false, errors.E(op, err)
	}

	return resq.Status(rec.Status), true, nil
}

func (s *Store) IsTracking(ctx context.Context, id string) (bool, error) {
	const op = errors.Op("redisstore_status_is_tracking")

	n, err := s.client.Exists(ctx, s.statusKey(id)).Result()
	if err != nil {
		return false, errors.E(op, err)
	}

	return n > 0, nil
}

// failureRecord is the append-only JSON shape pushed to the failed list.
type failureRecord struct {
	FailedAt string        `json:"failed_at"`
	Payload  *resq.Payload `json:"payload"`
	Error    string        `json:"error"`
	Worker   string        `json:"worker"`
	Queue    string        `json:"queue"`
}

func (s *Store) Record(ctx context.Context, payload *resq.Payload, errMsg, worker, queue string) error {
	const op = errors.Op("redisstore_failure_record")

	data, err := json.Marshal(&failureRecord{
		FailedAt: time.Now().UTC().Format(time.RFC3339),
		Payload:  payload,
		Error:    errMsg,
		Worker:   worker,
		Queue:    queue,
	})
	if err != nil {
		return errors.E(op, err)
	}

	err = s.client.RPush(ctx, s.failedKey(), data).Err()
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

func (s *Store) Increment(ctx context.Context, name string) error {
	const op = errors.Op("redisstore_stat_incr")

	err := s.client.Incr(ctx, s.statKey(name)).Err()
	if err != nil {
		return errors.E(op, err)
	}

	return nil
}

// Stat reads a counter value, 0 when it was never incremented.
func (s *Store) Stat(ctx context.Context, name string) (int64, error) {
	const op = errors.Op("redisstore_stat_get")

	n, err := s.client.Get(ctx, s.statKey(name)).Int64()
	if err != nil {
		if stderr.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.E(op, err)
	}

	return n, nil
}
