// Package notify is the in-process publish/subscribe channel that announces
// schedule and claim changes to dashboards.
//
// Delivery is synchronous: Publish calls every handler registered for the
// event, in registration order, before it returns. A handler that returns an
// error or panics is logged and skipped; the remaining handlers still run and
// the publisher never sees the failure.
package notify

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Handler receives one event. A returned error is isolated to this handler.
type Handler func(Event) error

// Subscription identifies one registration and is the only way to remove it.
type Subscription struct {
	name EventName
	id   uint64
	all  bool
}

type registration struct {
	id uint64
	fn Handler
}

// Bus is a typed, synchronous event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventName][]registration
	all      []registration
	nextID   uint64

	now       func() time.Time
	logf      func(format string, args ...any)
	onFailure func(name EventName)
	onPublish func(name EventName)
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogf routes handler failure messages. Defaults to stderr.
func WithLogf(logf func(format string, args ...any)) BusOption {
	return func(b *Bus) { b.logf = logf }
}

// WithFailureHook is called once per failed handler invocation.
func WithFailureHook(fn func(name EventName)) BusOption {
	return func(b *Bus) { b.onFailure = fn }
}

// WithPublishHook is called once per Publish, before any handler runs.
func WithPublishHook(fn func(name EventName)) BusOption {
	return func(b *Bus) { b.onPublish = fn }
}

// WithBusClock overrides the event timestamp source.
func WithBusClock(now func() time.Time) BusOption {
	return func(b *Bus) { b.now = now }
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[EventName][]registration),
		now:      time.Now,
		logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for name. The same function may be registered more
// than once; each call yields an independent Subscription.
func (b *Bus) Subscribe(name EventName, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[name] = append(b.handlers[name], registration{id: b.nextID, fn: fn})
	return Subscription{name: name, id: b.nextID}
}

// SubscribeAll registers fn for every event name. Used by transports that
// relay the whole stream.
func (b *Bus) SubscribeAll(fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.all = append(b.all, registration{id: b.nextID, fn: fn})
	return Subscription{id: b.nextID, all: true}
}

// Unsubscribe removes the registration. It reports false if the
// subscription was already removed.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.all {
		var ok bool
		b.all, ok = remove(b.all, sub.id)
		return ok
	}
	regs, ok := remove(b.handlers[sub.name], sub.id)
	if len(regs) == 0 {
		delete(b.handlers, sub.name)
	} else {
		b.handlers[sub.name] = regs
	}
	return ok
}

func remove(regs []registration, id uint64) ([]registration, bool) {
	for i, r := range regs {
		if r.id == id {
			out := make([]registration, 0, len(regs)-1)
			out = append(out, regs[:i]...)
			return append(out, regs[i+1:]...), true
		}
	}
	return regs, false
}

// HandlerCount reports how many handlers would receive name, including
// SubscribeAll registrations.
func (b *Bus) HandlerCount(name EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name]) + len(b.all)
}

// Publish delivers payload to every handler for name and returns the number
// of handlers that failed. Handlers run outside the bus lock, so they may
// publish or (un)subscribe themselves; changes take effect from the next
// Publish.
func (b *Bus) Publish(name EventName, payload any) int {
	event := Event{Name: name, Timestamp: b.now(), Payload: payload}
	if b.onPublish != nil {
		b.onPublish(name)
	}

	b.mu.RLock()
	targets := merge(b.handlers[name], b.all)
	b.mu.RUnlock()

	failed := 0
	for _, r := range targets {
		if err := invoke(r.fn, event); err != nil {
			failed++
			b.logf("warning: %s handler %d failed: %v", name, r.id, err)
			if b.onFailure != nil {
				b.onFailure(name)
			}
		}
	}
	return failed
}

// merge interleaves the two registration lists by id, which is registration order.
func merge(named, all []registration) []registration {
	out := make([]registration, 0, len(named)+len(all))
	i, j := 0, 0
	for i < len(named) && j < len(all) {
		if named[i].id < all[j].id {
			out = append(out, named[i])
			i++
		} else {
			out = append(out, all[j])
			j++
		}
	}
	out = append(out, named[i:]...)
	return append(out, all[j:]...)
}

func invoke(fn Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(e)
}
