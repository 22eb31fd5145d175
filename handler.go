package resq

import (
	"context"
	"fmt"
	"sync"
)

// Handler is the unit of user code bound to a payload class.
type Handler interface {
	// Perform executes the job's work. Returning ErrDontPerform cancels
	// the attempt without counting it as a failure.
	Perform(ctx context.Context, job *Job) error
}

// SetUpHandler is implemented by handlers that need per-attempt setup
// before Perform runs.
type SetUpHandler interface {
	SetUp(ctx context.Context, job *Job) error
}

// TearDownHandler is implemented by handlers that clean up after Perform.
type TearDownHandler interface {
	TearDown(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a bare function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Perform(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Factory resolves a payload class into a runnable handler. Implementations
// may back resolution with a DI container or any dynamic lookup; the
// default is the constructor Registry. The Job constructs exactly one
// instance per attempt and caches it.
type Factory interface {
	Create(class string, args map[string]any, queue string) (Handler, error)
}

// Constructor builds one handler instance for one job attempt.
type Constructor func(args map[string]any, queue string) (Handler, error)

// Registry is the default Factory: a map from class name to constructor.
// Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds class to ctor, replacing any previous binding.
func (r *Registry) Register(class string, ctor Constructor) {
	r.mu.Lock()
	r.constructors[class] = ctor
	r.mu.Unlock()
}

// Classes returns the registered class names, in no particular order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.constructors))
	for class := range r.constructors {
		out = append(out, class)
	}

	return out
}

func (r *Registry) Create(class string, args map[string]any, queue string) (Handler, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[class]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	return ctor(args, queue)
}
