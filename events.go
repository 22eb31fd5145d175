package resq

import "sync"

// Lifecycle events triggered by the core. Listener arguments per event:
//
//	beforePerform: (*Job)
//	afterPerform:  (*Job)
//	onFailure:     (error, *Job)
//	beforeEnqueue: (class string, args map[string]any, queue string, id string)
//	afterEnqueue:  (class string, args map[string]any, queue string, id string)
const (
	EventBeforePerform = "beforePerform"
	EventAfterPerform  = "afterPerform"
	EventOnFailure     = "onFailure"
	EventBeforeEnqueue = "beforeEnqueue"
	EventAfterEnqueue  = "afterEnqueue"
)

// Callback is a listener invoked synchronously by Bus.Trigger. A non-nil
// error aborts the remaining listeners of that trigger and is handed back
// to the caller of Trigger.
type Callback func(args ...any) error

// Listener is the registration handle returned by Listen and accepted by
// StopListening. Go functions are not comparable, so the handle stands in
// for callback identity.
type Listener struct {
	event string
	fn    Callback
}

// Bus is an ordered synchronous listener registry. Listeners run on the
// triggering goroutine, in registration order, with no isolation between
// them. Construct via NewBus.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]*Listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]*Listener)}
}

// Listen appends fn to the listener list for event. No deduplication, the
// same callback may be registered any number of times.
func (b *Bus) Listen(event string, fn Callback) *Listener {
	l := &Listener{event: event, fn: fn}

	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], l)
	b.mu.Unlock()

	return l
}

// StopListening removes the first occurrence of l from its event list.
// No-op when l was already removed or never registered.
func (b *Bus) StopListening(l *Listener) {
	if l == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[l.event]
	for i := range regs {
		if regs[i] == l {
			b.listeners[l.event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Trigger invokes every listener currently registered for event, in
// registration order. The first listener error stops the run and is
// returned. Triggering an event with no listeners is a no-op.
func (b *Bus) Trigger(event string, args ...any) error {
	b.mu.Lock()
	regs := append([]*Listener(nil), b.listeners[event]...)
	b.mu.Unlock()

	for _, l := range regs {
		if err := l.fn(args...); err != nil {
			return err
		}
	}

	return nil
}

// Clear drops every listener for every event. Intended for test setups.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.listeners = make(map[string][]*Listener)
	b.mu.Unlock()
}
