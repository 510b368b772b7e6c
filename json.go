package signalr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONProtocol text protocol: one JSON object per record, records terminated by 0x1E.
type JSONProtocol struct{}

// Name implement Protocol
func (JSONProtocol) Name() string { return "json" }

// Version implement Protocol
func (JSONProtocol) Version() int { return protocolVersion }

// Format implement Protocol
func (JSONProtocol) Format() TransferFormat { return TextFormat }

// jsonPayload a raw JSON value, decoded lazily.  Re-encodes verbatim.
type jsonPayload json.RawMessage

// Decode implement Payload
func (p jsonPayload) Decode(v interface{}) error {
	return json.Unmarshal(p, v)
}

// MarshalJSON implement json.Marshaler
func (p jsonPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// valuePayload an in-process value that never touched the wire.
type valuePayload struct {
	v interface{}
}

// Decode implement Payload
func (p valuePayload) Decode(v interface{}) error {
	data, err := json.Marshal(p.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type jsonMessage struct {
	Type         MessageType       `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Item         json.RawMessage   `json:"item,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Encode implement Protocol
func (JSONProtocol) Encode(m Message) ([]byte, error) {
	var v interface{}

	switch msg := m.(type) {
	case InvocationMessage:
		args := msg.Arguments
		if args == nil {
			args = []interface{}{}
		}
		v = struct {
			Type         MessageType   `json:"type"`
			InvocationID string        `json:"invocationId,omitempty"`
			Target       string        `json:"target"`
			Arguments    []interface{} `json:"arguments"`
		}{msg.Type(), msg.InvocationID, msg.Target, args}
	case StreamItemMessage:
		v = struct {
			Type         MessageType `json:"type"`
			InvocationID string      `json:"invocationId"`
			Item         interface{} `json:"item"`
		}{StreamItemType, msg.InvocationID, msg.Item}
	case CompletionMessage:
		out := struct {
			Type         MessageType `json:"type"`
			InvocationID string      `json:"invocationId"`
			Result       interface{} `json:"result,omitempty"`
			Error        string      `json:"error,omitempty"`
		}{Type: CompletionType, InvocationID: msg.InvocationID, Error: msg.Error}
		if msg.Error == "" && msg.HasResult {
			out.Result = msg.Result
			if out.Result == nil {
				out.Result = json.RawMessage("null")
			}
		}
		v = out
	case CancelInvocationMessage:
		v = struct {
			Type         MessageType `json:"type"`
			InvocationID string      `json:"invocationId"`
		}{CancelInvocationType, msg.InvocationID}
	case PingMessage:
		v = struct {
			Type MessageType `json:"type"`
		}{PingType}
	case CloseMessage:
		v = struct {
			Type  MessageType `json:"type"`
			Error string      `json:"error,omitempty"`
		}{CloseType, msg.Error}
	default:
		return nil, fmt.Errorf("json: unsupported message %T", m)
	}

	return encodeRecord(v)
}

// Decode implement Protocol
func (JSONProtocol) Decode(frame []byte) ([]Message, error) {
	var out []Message

	for _, record := range bytes.Split(frame, []byte{recordSeparator}) {
		if len(record) == 0 {
			continue
		}

		var wire jsonMessage
		if err := json.Unmarshal(record, &wire); err != nil {
			return out, fmt.Errorf("json: invalid message %q: %w", record, err)
		}

		m, err := wire.message()
		if err != nil {
			return out, err
		}
		if m != nil {
			out = append(out, m)
		}
	}

	return out, nil
}

func (w *jsonMessage) message() (Message, error) {
	switch w.Type {
	case InvocationType, StreamInvocationType:
		args := make([]interface{}, len(w.Arguments))
		for i, a := range w.Arguments {
			args[i] = jsonPayload(a)
		}
		return InvocationMessage{
			InvocationID: w.InvocationID,
			Target:       w.Target,
			Arguments:    args,
			Streaming:    w.Type == StreamInvocationType,
		}, nil
	case StreamItemType:
		return StreamItemMessage{InvocationID: w.InvocationID, Item: jsonPayload(w.Item)}, nil
	case CompletionType:
		c := CompletionMessage{InvocationID: w.InvocationID, Error: w.Error}
		if len(w.Result) > 0 {
			c.Result = jsonPayload(w.Result)
			c.HasResult = true
		}
		return c, nil
	case CancelInvocationType:
		return CancelInvocationMessage{InvocationID: w.InvocationID}, nil
	case PingType:
		return PingMessage{}, nil
	case CloseType:
		return CloseMessage{Error: w.Error}, nil
	}

	// unknown types are skipped so newer hubs can add messages
	return nil, nil
}
