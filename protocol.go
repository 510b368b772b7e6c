package signalr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TransferFormat tells the transport whether frames are text or binary.
type TransferFormat int

// Transfer formats
const (
	TextFormat TransferFormat = iota
	BinaryFormat
)

// Protocol encodes and decodes hub messages.  Decode may return zero or more messages per frame.
type Protocol interface {
	// Name sent in the handshake request, e.g. "json".
	Name() string
	Version() int
	Format() TransferFormat
	Encode(m Message) ([]byte, error)
	Decode(frame []byte) ([]Message, error)
}

// recordSeparator terminates every text record, including handshake records.
const recordSeparator = 0x1e

const protocolVersion = 1

// HandshakeRequest first record sent by the client.
type HandshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// HandshakeResponse reply from the hub.  An empty Error means the protocol was accepted.
type HandshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// EncodeHandshakeRequest builds the handshake record for p.
func EncodeHandshakeRequest(p Protocol) ([]byte, error) {
	return encodeRecord(HandshakeRequest{Protocol: p.Name(), Version: p.Version()})
}

// EncodeHandshakeResponse builds a handshake response record.
func EncodeHandshakeResponse(r HandshakeResponse) ([]byte, error) {
	return encodeRecord(r)
}

// ParseHandshakeRequest reads the first record of frame.  rest holds any bytes after it.
func ParseHandshakeRequest(frame []byte) (req HandshakeRequest, rest []byte, err error) {
	record, rest, err := splitRecord(frame)
	if err != nil {
		return req, nil, err
	}
	if err = json.Unmarshal(record, &req); err != nil {
		return req, nil, fmt.Errorf("invalid handshake request: %w", err)
	}
	return req, rest, nil
}

// ParseHandshakeResponse reads the first record of frame.  rest holds any messages batched after it.
func ParseHandshakeResponse(frame []byte) (resp HandshakeResponse, rest []byte, err error) {
	record, rest, err := splitRecord(frame)
	if err != nil {
		return resp, nil, err
	}
	if err = json.Unmarshal(record, &resp); err != nil {
		return resp, nil, fmt.Errorf("invalid handshake response: %w", err)
	}
	return resp, rest, nil
}

func encodeRecord(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}

var errIncompleteRecord = errors.New("message is incomplete")

func splitRecord(frame []byte) (record, rest []byte, err error) {
	i := bytes.IndexByte(frame, recordSeparator)
	if i < 0 {
		return nil, nil, errIncompleteRecord
	}
	return frame[:i], frame[i+1:], nil
}
