package resq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// In-memory collaborators backing the package tests.

type memStore struct {
	mu     sync.Mutex
	queues map[string][][]byte
	nextID int
}

func newMemStore() *memStore {
	return &memStore{queues: make(map[string][][]byte)}
}

func (m *memStore) Push(_ context.Context, queue string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[queue] = append(m.queues[queue], payload)
	return nil
}

func (m *memStore) Pop(_ context.Context, queue string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[queue]
	if len(q) == 0 {
		return nil, nil
	}

	head := q[0]
	m.queues[queue] = q[1:]
	return head, nil
}

func (m *memStore) BlockingPop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		for _, q := range queues {
			data, _ := m.Pop(ctx, q)
			if data != nil {
				return q, data, nil
			}
		}

		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return "", nil, nil
		}

		time.Sleep(2 * time.Millisecond)
	}
}

func (m *memStore) GenerateID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	return fmt.Sprintf("job-%d", m.nextID), nil
}

func (m *memStore) queueLen(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queues[queue])
}

type memStatuses struct {
	mu sync.Mutex
	m  map[string]Status
}

func newMemStatuses() *memStatuses {
	return &memStatuses{m: make(map[string]Status)}
}

func (s *memStatuses) Create(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[id] = StatusWaiting
	return nil
}

func (s *memStatuses) Update(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; ok {
		s.m[id] = status
	}
	return nil
}

func (s *memStatuses) Get(_ context.Context, id string) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.m[id]
	return st, ok, nil
}

func (s *memStatuses) IsTracking(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.m[id]
	return ok, nil
}

type failureEntry struct {
	payload *Payload
	errMsg  string
	worker  string
	queue   string
}

type memFailures struct {
	mu      sync.Mutex
	records []failureEntry
}

func newMemFailures() *memFailures {
	return &memFailures{}
}

func (f *memFailures) Record(_ context.Context, payload *Payload, errMsg, worker, queue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, failureEntry{payload: payload, errMsg: errMsg, worker: worker, queue: queue})
	return nil
}

func (f *memFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.records)
}

func (f *memFailures) last() failureEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.records[len(f.records)-1]
}

type memCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]int)}
}

func (c *memCounters) Increment(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[name]++
	return nil
}

func (c *memCounters) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[name]
}

func (c *memCounters) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

type testEnv struct {
	client   *Client
	store    *memStore
	statuses *memStatuses
	failures *memFailures
	counters *memCounters
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newMemStore(),
		statuses: newMemStatuses(),
		failures: newMemFailures(),
		counters: newMemCounters(),
	}

	c, err := New(
		&Config{Interval: 1},
		env.store,
		WithStatusStore(env.statuses),
		WithFailureRecorder(env.failures),
		WithCounters(env.counters),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.client = c
	return env
}

// registry returns the client's default factory for registering handlers.
func (e *testEnv) registry(t *testing.T) *Registry {
	t.Helper()

	r, ok := e.client.factory.(*Registry)
	if !ok {
		t.Fatalf("factory is not a *Registry: %T", e.client.factory)
	}
	return r
}
