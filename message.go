package signalr

// MessageType tag carried by every hub protocol message.
type MessageType int

// Hub protocol message types.
const (
	InvocationType       MessageType = 1
	StreamItemType       MessageType = 2
	CompletionType       MessageType = 3
	StreamInvocationType MessageType = 4
	CancelInvocationType MessageType = 5
	PingType             MessageType = 6
	CloseType            MessageType = 7
)

// Message is any hub protocol message.
type Message interface {
	Type() MessageType
}

// Payload is a value received from the hub.  Decoding is left to the caller so that
// the engine never needs to know the shape of hub arguments or results.
type Payload interface {
	Decode(v interface{}) error
}

// InvocationMessage calls a method on the other side.  Without an InvocationID it is
// fire-and-forget (Send, or a push from the hub).  Streaming selects StreamInvocationType on the wire.
//
// Arguments holds caller values when sending and Payload values when received.
type InvocationMessage struct {
	InvocationID string
	Target       string
	Arguments    []interface{}
	Streaming    bool
}

// Type implement Message
func (m InvocationMessage) Type() MessageType {
	if m.Streaming {
		return StreamInvocationType
	}
	return InvocationType
}

// StreamItemMessage one item of a server stream.
type StreamItemMessage struct {
	InvocationID string
	Item         interface{}
}

// Type implement Message
func (StreamItemMessage) Type() MessageType { return StreamItemType }

// CompletionMessage terminates an invocation or stream.  Error wins over Result;
// HasResult distinguishes a null result from a void completion.
type CompletionMessage struct {
	InvocationID string
	Result       interface{}
	HasResult    bool
	Error        string
}

// Type implement Message
func (CompletionMessage) Type() MessageType { return CompletionType }

// CancelInvocationMessage asks the hub to stop producing items for a stream.
type CancelInvocationMessage struct {
	InvocationID string
}

// Type implement Message
func (CancelInvocationMessage) Type() MessageType { return CancelInvocationType }

// PingMessage keepalive.  Carries nothing.
type PingMessage struct{}

// Type implement Message
func (PingMessage) Type() MessageType { return PingType }

// String implement Stringer interface
func (PingMessage) String() string {
	return "Thump thump!"
}

// CloseMessage sent by the hub before it drops the connection.
type CloseMessage struct {
	Error string
}

// Type implement Message
func (CloseMessage) Type() MessageType { return CloseType }

// payloads converts received arguments to Payload values.  Protocols always decode
// arguments into Payloads, anything else is an in-process value and gets wrapped.
func payloads(args []interface{}) []Payload {
	out := make([]Payload, len(args))
	for i, a := range args {
		out[i] = asPayload(a)
	}
	return out
}

func asPayload(v interface{}) Payload {
	if p, ok := v.(Payload); ok {
		return p
	}
	if v == nil {
		return nil
	}
	return valuePayload{v}
}
