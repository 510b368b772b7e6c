package signalr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORProtocol binary protocol.  Each record is a uvarint length prefix followed by a CBOR map
// using the same field names as the JSON protocol.
type CBORProtocol struct{}

// Name implement Protocol
func (CBORProtocol) Name() string { return "cbor" }

// Version implement Protocol
func (CBORProtocol) Version() int { return protocolVersion }

// Format implement Protocol
func (CBORProtocol) Format() TransferFormat { return BinaryFormat }

var cborNull = []byte{0xf6}

// maps decode with string keys so payloads decoded into interface{} stay printable as JSON.
var cborDecMode = mustDecMode(cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
})

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: invalid decode options: %s", err))
	}
	return dm
}

// cborPayload a raw CBOR data item, decoded lazily.  Re-encodes verbatim.
type cborPayload cbor.RawMessage

// Decode implement Payload
func (p cborPayload) Decode(v interface{}) error {
	return cborDecMode.Unmarshal(p, v)
}

// MarshalCBOR implement cbor.Marshaler
func (p cborPayload) MarshalCBOR() ([]byte, error) {
	if len(p) == 0 {
		return cborNull, nil
	}
	return p, nil
}

type cborMessage struct {
	Type         MessageType       `cbor:"type"`
	InvocationID string            `cbor:"invocationId,omitempty"`
	Target       string            `cbor:"target,omitempty"`
	Arguments    []cbor.RawMessage `cbor:"arguments,omitempty"`
	Item         cbor.RawMessage   `cbor:"item,omitempty"`
	Result       cbor.RawMessage   `cbor:"result,omitempty"`
	Error        string            `cbor:"error,omitempty"`
}

type cborOutbound struct {
	Type         MessageType   `cbor:"type"`
	InvocationID string        `cbor:"invocationId,omitempty"`
	Target       string        `cbor:"target,omitempty"`
	Arguments    []interface{} `cbor:"arguments,omitempty"`
	Item         interface{}   `cbor:"item,omitempty"`
	Result       interface{}   `cbor:"result,omitempty"`
	Error        string        `cbor:"error,omitempty"`
}

// Encode implement Protocol
func (CBORProtocol) Encode(m Message) ([]byte, error) {
	out := cborOutbound{Type: m.Type()}

	switch msg := m.(type) {
	case InvocationMessage:
		out.InvocationID = msg.InvocationID
		out.Target = msg.Target
		out.Arguments = msg.Arguments
	case StreamItemMessage:
		out.InvocationID = msg.InvocationID
		out.Item = msg.Item
		if out.Item == nil {
			out.Item = cbor.RawMessage(cborNull)
		}
	case CompletionMessage:
		out.InvocationID = msg.InvocationID
		out.Error = msg.Error
		if msg.Error == "" && msg.HasResult {
			out.Result = msg.Result
			if out.Result == nil {
				out.Result = cbor.RawMessage(cborNull)
			}
		}
	case CancelInvocationMessage:
		out.InvocationID = msg.InvocationID
	case PingMessage:
	case CloseMessage:
		out.Error = msg.Error
	default:
		return nil, fmt.Errorf("cbor: unsupported message %T", m)
	}

	body, err := cbor.Marshal(out)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(body))
	n := binary.PutUvarint(frame, uint64(len(body)))
	return append(frame[:n], body...), nil
}

var errShortRecord = errors.New("cbor: record shorter than its length prefix")

// Decode implement Protocol
func (CBORProtocol) Decode(frame []byte) ([]Message, error) {
	var out []Message

	for len(frame) > 0 {
		size, k := binary.Uvarint(frame)
		if k <= 0 {
			return out, errors.New("cbor: invalid length prefix")
		}
		if uint64(len(frame)-k) < size {
			return out, errShortRecord
		}
		record := frame[k : k+int(size)]
		frame = frame[k+int(size):]

		var wire cborMessage
		if err := cborDecMode.Unmarshal(record, &wire); err != nil {
			return out, fmt.Errorf("cbor: invalid message: %w", err)
		}

		if m := wire.message(); m != nil {
			out = append(out, m)
		}
	}

	return out, nil
}

func (w *cborMessage) message() Message {
	switch w.Type {
	case InvocationType, StreamInvocationType:
		args := make([]interface{}, len(w.Arguments))
		for i, a := range w.Arguments {
			args[i] = cborPayload(a)
		}
		return InvocationMessage{
			InvocationID: w.InvocationID,
			Target:       w.Target,
			Arguments:    args,
			Streaming:    w.Type == StreamInvocationType,
		}
	case StreamItemType:
		return StreamItemMessage{InvocationID: w.InvocationID, Item: cborPayload(w.Item)}
	case CompletionType:
		c := CompletionMessage{InvocationID: w.InvocationID, Error: w.Error}
		if len(w.Result) > 0 {
			c.Result = cborPayload(w.Result)
			c.HasResult = true
		}
		return c
	case CancelInvocationType:
		return CancelInvocationMessage{InvocationID: w.InvocationID}
	case PingType:
		return PingMessage{}
	case CloseType:
		return CloseMessage{Error: w.Error}
	}
	return nil
}
