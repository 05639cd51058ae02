// Package hooks runs ordered handler chains around named operations.
//
// Handlers registered for one event run one after another in registration
// order; each must return before the next starts. Intercept wraps a call with
// "before:<method>" and "after:<method>" chains that can rewrite arguments,
// short-circuit the call or replace its result.
package hooks

import (
	"context"
	"sync"
	"sync/atomic"
)

// HandlerID identifies a registered handler for Off
type HandlerID uint64

// Handler handles one event payload. Returning an error stops the chain.
type Handler func(ctx context.Context, payload any) error

type registration struct {
	id HandlerID
	fn Handler
}

// Registry holds handler chains keyed by event name. The zero value is not usable.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   atomic.Uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]registration),
	}
}

// On appends a handler to the event chain
func (r *Registry) On(event string, h Handler) HandlerID {
	id := HandlerID(r.nextID.Add(1))
	r.add(event, id, h)
	return id
}

// Once appends a handler that runs at most one time. It is removed before it
// runs, so concurrent calls race for it and only one wins.
func (r *Registry) Once(event string, h Handler) HandlerID {
	id := HandlerID(r.nextID.Add(1))
	r.add(event, id, func(ctx context.Context, payload any) error {
		if !r.Off(event, id) {
			return nil
		}
		return h(ctx, payload)
	})
	return id
}

func (r *Registry) add(event string, id HandlerID, h Handler) {
	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], registration{id: id, fn: h})
	r.mu.Unlock()
}

// Off removes a handler and reports whether it was registered
func (r *Registry) Off(event string, id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.handlers[event]
	for i, reg := range chain {
		if reg.id != id {
			continue
		}
		next := make([]registration, 0, len(chain)-1)
		next = append(next, chain[:i]...)
		next = append(next, chain[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, event)
		} else {
			r.handlers[event] = next
		}
		return true
	}
	return false
}

// Count returns the number of handlers registered for event
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Call runs the event chain with payload. Handlers registered or removed while
// the chain runs do not affect it.
func (r *Registry) Call(ctx context.Context, event string, payload any) error {
	r.mu.RLock()
	chain := r.handlers[event]
	r.mu.RUnlock()

	for _, reg := range chain {
		if err := reg.fn(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}
