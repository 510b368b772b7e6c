package signalr

import (
	"fmt"
	"regexp"
)

// ConnectError used when the consuming app calls Start with a bad config or from the wrong state.
type ConnectError string

func (ce ConnectError) Error() string {
	return fmt.Sprintf("ConnectError: %s", string(ce))
}

// SocketConnectionError error created when the websocket dial fails.
type SocketConnectionError string

// Error implement Error interface
func (sce SocketConnectionError) Error() string {
	return fmt.Sprintf("SocketConnectionError: %s", string(sce))
}

// SocketError error created when websocket.ReadMessage or websocket.WriteMessage returns an error.
type SocketError string

// Error implement Error interface
func (se SocketError) Error() string {
	return fmt.Sprintf("SocketError: %s", string(se))
}

// StateError returned by Invoke, Send and Stream when the connection is not in the Connected state.
type StateError struct {
	Op    string
	State ConnectionState
}

// Error implement Error interface
func (se *StateError) Error() string {
	return fmt.Sprintf("StateError: cannot %s while connection is %s", se.Op, se.State)
}

// HandshakeError error created when protocol negotiation is rejected or does not finish in time.
type HandshakeError struct {
	Reason string
	Err    error
}

// Error implement Error interface
func (he *HandshakeError) Error() string {
	if he.Err != nil {
		return fmt.Sprintf("HandshakeError: %s: %s", he.Reason, he.Err.Error())
	}
	return fmt.Sprintf("HandshakeError: %s", he.Reason)
}

func (he *HandshakeError) Unwrap() error {
	return he.Err
}

// TransportError wraps a failure surfaced by the Transport.  Always fatal to the connection.
type TransportError struct {
	Err error
}

// Error implement Error interface
func (te *TransportError) Error() string {
	return fmt.Sprintf("TransportError: %s", te.Err.Error())
}

func (te *TransportError) Unwrap() error {
	return te.Err
}

// ConnectionClosedError handed to every pending call when the connection tears down.
// Err carries the reason the connection closed, nil when the close was clean or requested by the caller.
type ConnectionClosedError struct {
	Err error
}

// Error implement Error interface
func (cce *ConnectionClosedError) Error() string {
	if cce.Err != nil {
		return fmt.Sprintf("ConnectionClosedError: %s", cce.Err.Error())
	}
	return "ConnectionClosedError: invocation canceled due to connection being closed"
}

func (cce *ConnectionClosedError) Unwrap() error {
	return cce.Err
}

// TimeoutError error created when the server goes quiet for longer than the configured timeout.
type TimeoutError string

// ErrServerTimeout is the cause used by the liveness monitor.
const ErrServerTimeout TimeoutError = "Server timeout elapsed without receiving a message from the server."

// Error implement Error interface.  The message is returned as-is.
func (te TimeoutError) Error() string {
	return string(te)
}

// ServerInvocationError carries the error text returned by the hub for a single invocation, verbatim.
type ServerInvocationError string

// Error implement the error interface
func (sie ServerInvocationError) Error() string {
	return string(sie)
}

// ServerCloseError created when the hub sends a Close message carrying an error.
type ServerCloseError string

// Error implement the error interface
func (sce ServerCloseError) Error() string {
	return fmt.Sprintf("Server returned an error on close: %s", string(sce))
}

// ProtocolViolationError created when a method is called with the wrong shape:
// a streaming method through Invoke, or a non-streaming method through Stream.
type ProtocolViolationError struct {
	Target string
	// Streaming is true when the target is a streaming method called with Invoke.
	Streaming bool

	message string
}

// Error implement the error interface
func (pve *ProtocolViolationError) Error() string {
	if pve.message != "" {
		return pve.message
	}
	if pve.Streaming {
		return fmt.Sprintf("The client attempted to invoke the streaming '%s' method in a non-streaming fashion.", pve.Target)
	}
	return fmt.Sprintf("The client attempted to invoke the non-streaming '%s' method in a streaming fashion.", pve.Target)
}

var shapeViolation = regexp.MustCompile(`attempted to invoke the (non-streaming|streaming) '([^']*)' method in a (?:non-streaming|streaming) fashion`)

// serverError classifies a completion error text.  Shape violations reported by the hub
// come back as ProtocolViolationError, anything else as ServerInvocationError.
func serverError(text string) error {
	if m := shapeViolation.FindStringSubmatch(text); m != nil {
		return &ProtocolViolationError{
			Target:    m[2],
			Streaming: m[1] == "streaming",
			message:   text,
		}
	}
	return ServerInvocationError(text)
}
