package signalr

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type callResult struct {
	value Payload
	err   error
}

// pendingCall one outstanding Invoke or Stream, keyed by correlation id.
type pendingCall struct {
	id        string
	target    string
	streaming bool
	created   time.Time

	// items received so far, only touched on the delivery goroutine
	items int

	// Invoke waiters read exactly one result from here.
	result chan callResult
	// Stream callers get their callbacks through sub.
	sub *Subscription
}

// registry tracks in-flight calls of one connection cycle.  Ids are only unique within
// the cycle, a new cycle starts from a new registry.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	calls  map[string]*pendingCall
	// set once drained, later registrations fail with it
	closed error
}

func newRegistry() *registry {
	return &registry{calls: make(map[string]*pendingCall)}
}

// add registers an Invoke, or a Stream when sub is non-nil.  sub gets its id here.
func (r *registry) add(target string, sub *Subscription) (*pendingCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed != nil {
		return nil, r.closed
	}

	call := &pendingCall{
		id:        strconv.FormatUint(r.nextID, 10),
		target:    target,
		streaming: sub != nil,
		created:   time.Now(),
		sub:       sub,
	}
	r.nextID++

	if sub != nil {
		sub.id = call.id
	} else {
		call.result = make(chan callResult, 1)
	}

	r.calls[call.id] = call
	return call, nil
}

func (r *registry) get(id string) *pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[id]
}

// remove returns nil when id was already resolved, so each call terminates once.
func (r *registry) remove(id string) *pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok {
		return nil
	}
	delete(r.calls, id)
	return call
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}

// drain empties the registry and refuses further calls.  The returned calls are owned by the
// caller, which must fail each of them.
func (r *registry) drain(cause error) []*pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = cause

	calls := make([]*pendingCall, 0, len(r.calls))
	for _, c := range r.calls {
		calls = append(calls, c)
	}
	r.calls = make(map[string]*pendingCall)

	return calls
}

// StreamObserver callbacks for a server stream.  All of them run on the delivery goroutine.
// Exactly one of Error or Complete is called, unless the subscription is cancelled first.
type StreamObserver struct {
	Next     func(item Payload)
	Error    func(err error)
	Complete func()
}

// Subscription handle for an open server stream.
type Subscription struct {
	id       string
	target   string
	observer StreamObserver
	session  *session

	cancelled atomic.Bool
}

// ID correlation id of the stream.
func (sub *Subscription) ID() string {
	return sub.id
}

// Cancel stops delivery to the observer right away and asks the hub to stop the stream.
// The connection stays open.  Safe to call more than once, and from inside a callback.
func (sub *Subscription) Cancel() {
	if sub.cancelled.Swap(true) {
		return
	}
	sub.session.cancelStream(sub.id)
}

func (sub *Subscription) next(item Payload) {
	if sub.cancelled.Load() || sub.observer.Next == nil {
		return
	}
	sub.observer.Next(item)
}

func (sub *Subscription) fail(err error) {
	if sub.cancelled.Load() || sub.observer.Error == nil {
		return
	}
	sub.observer.Error(err)
}

func (sub *Subscription) complete() {
	if sub.cancelled.Load() || sub.observer.Complete == nil {
		return
	}
	sub.observer.Complete()
}
