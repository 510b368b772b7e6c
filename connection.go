package signalr

import "context"

// Connection specify interface methods that allow consumer to interact with a hub connection.
//
// Handlers, stream observers and close callbacks all run on the connection's delivery
// goroutine, in the order frames arrived.  A callback that needs to call Invoke or Stop
// must do so from another goroutine, the result can't be delivered while the callback blocks.
type Connection interface {
	State() ConnectionState
	// ConnectionID identity of the current cycle, empty while disconnected.
	ConnectionID() string

	// Start opens the transport and negotiates the protocol.  Valid only when Disconnected.
	// It returns nil once the hub accepted the handshake, even when the same frame also closed
	// the connection; that close is reported through OnClose.
	Start(ctx context.Context) error
	// Stop closes the connection and waits until every pending call has been failed
	// and the close callbacks have run.
	Stop(ctx context.Context) error

	// Invoke calls target and waits for its result.  The Payload is nil for void methods.
	Invoke(ctx context.Context, target string, args ...interface{}) (Payload, error)
	// Send calls target without waiting for the hub, returns once the transport accepted the frame.
	Send(ctx context.Context, target string, args ...interface{}) error
	// Stream calls a streaming method, items are handed to observer in order.
	Stream(ctx context.Context, observer StreamObserver, target string, args ...interface{}) (*Subscription, error)

	// On registers a handler for a method the hub pushes.  Names are case-insensitive.
	// A nil handler is ignored and On returns nil.
	On(name string, handler HandlerFunc) *Registration
	// Off removes the given registrations, or every handler for name when none are passed.
	Off(name string, registrations ...*Registration)
	// OnClose registers a callback run once per connection cycle with the reason it ended,
	// nil when the close was clean or requested by Stop.
	OnClose(func(err error))
}
