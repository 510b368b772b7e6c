package signalr

import (
	"strings"
	"sync"
)

// HandlerFunc receives the arguments of a method the hub pushes to the client.
type HandlerFunc func(args ...Payload)

// Registration handle returned by On, used to remove a single handler with Off.
type Registration struct {
	name    string
	handler HandlerFunc
}

// Name the normalized method name the handler is registered under.
func (r *Registration) Name() string {
	return r.name
}

// dispatchTable maps lowercased method names to handlers in registration order.
// It belongs to the client, not to a connection cycle, so handlers survive Stop/Start.
type dispatchTable struct {
	mu       sync.RWMutex
	handlers map[string][]*Registration
}

func newDispatchTable() *dispatchTable {
	return &dispatchTable{handlers: make(map[string][]*Registration)}
}

func normalize(name string) string {
	return strings.ToLower(name)
}

// on adds handler under name.  A nil handler is not registered and on returns nil.
func (d *dispatchTable) on(name string, handler HandlerFunc) *Registration {
	if handler == nil {
		return nil
	}
	r := &Registration{name: normalize(name), handler: handler}

	d.mu.Lock()
	d.handlers[r.name] = append(d.handlers[r.name], r)
	d.mu.Unlock()

	return r
}

// off removes the given registrations, or every handler for name if none are given.
func (d *dispatchTable) off(name string, registrations ...*Registration) {
	key := normalize(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(registrations) == 0 {
		delete(d.handlers, key)
		return
	}

	kept := d.handlers[key][:0:0]
	for _, h := range d.handlers[key] {
		if !containsRegistration(registrations, h) {
			kept = append(kept, h)
		}
	}

	if len(kept) == 0 {
		delete(d.handlers, key)
		return
	}
	d.handlers[key] = kept
}

func containsRegistration(list []*Registration, r *Registration) bool {
	for _, l := range list {
		if l == r {
			return true
		}
	}
	return false
}

// lookup snapshot of the handlers for name so callbacks run without the lock held.
func (d *dispatchTable) lookup(name string) []*Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	found := d.handlers[normalize(name)]
	if len(found) == 0 {
		return nil
	}
	return append([]*Registration(nil), found...)
}

// dispatch runs every handler for the invocation target.  Returns how many ran;
// unknown targets are dropped.
func (d *dispatchTable) dispatch(m InvocationMessage) int {
	handlers := d.lookup(m.Target)
	if len(handlers) == 0 {
		return 0
	}

	args := payloads(m.Arguments)
	for _, h := range handlers {
		h.handler(args...)
	}
	return len(handlers)
}
