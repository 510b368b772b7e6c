package testhub

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	signalr "gitlab.com/techviking/signalr/v3"
)

// hubConn one client connected to the hub.
type hubConn struct {
	server   *Server
	ws       *websocket.Conn
	logger   *slog.Logger
	protocol signalr.Protocol
	msgType  int

	writeMu sync.Mutex
}

// handshake reads the handshake request and answers it.  Returns the bytes that followed the
// request record.
func (hc *hubConn) handshake() ([]byte, bool) {
	_, data, err := hc.ws.ReadMessage()
	if err != nil {
		return nil, false
	}

	req, rest, err := signalr.ParseHandshakeRequest(data)
	if err != nil {
		hc.writeHandshake(signalr.HandshakeResponse{Error: err.Error()})
		return nil, false
	}

	p := lookupProtocol(req.Protocol)
	if p == nil {
		hc.writeHandshake(signalr.HandshakeResponse{Error: fmt.Sprintf("The protocol '%s' is not supported.", req.Protocol)})
		return nil, false
	}
	if req.Version != p.Version() {
		hc.writeHandshake(signalr.HandshakeResponse{Error: fmt.Sprintf("The server does not support version %d of the '%s' protocol.", req.Version, req.Protocol)})
		return nil, false
	}

	hc.protocol = p
	hc.msgType = websocket.TextMessage
	if p.Format() == signalr.BinaryFormat {
		hc.msgType = websocket.BinaryMessage
	}

	if err := hc.writeHandshake(signalr.HandshakeResponse{}); err != nil {
		return nil, false
	}
	return rest, true
}

func (hc *hubConn) writeHandshake(resp signalr.HandshakeResponse) error {
	frame, err := signalr.EncodeHandshakeResponse(resp)
	if err != nil {
		return err
	}

	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()

	return hc.ws.WriteMessage(websocket.TextMessage, frame)
}

func (hc *hubConn) serve() {
	defer hc.ws.Close()

	rest, ok := hc.handshake()
	if !ok {
		return
	}

	stop := make(chan struct{})
	defer close(stop)

	if hc.server.opts.KeepAliveInterval > 0 {
		go hc.keepAlive(hc.server.opts.KeepAliveInterval, stop)
	}

	if len(rest) > 0 && !hc.handleFrame(rest) {
		return
	}

	for {
		_, data, err := hc.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hc.logger.Error("read error", "error", err)
			}
			return
		}

		if !hc.handleFrame(data) {
			return
		}
	}
}

func (hc *hubConn) keepAlive(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := hc.write(signalr.PingMessage{}); err != nil {
				return
			}
		}
	}
}

func (hc *hubConn) write(m signalr.Message) error {
	frame, err := hc.protocol.Encode(m)
	if err != nil {
		return err
	}

	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()

	return hc.ws.WriteMessage(hc.msgType, frame)
}

// handleFrame returns false once the connection should end.
func (hc *hubConn) handleFrame(frame []byte) bool {
	msgs, err := hc.protocol.Decode(frame)
	if err != nil {
		hc.logger.Error("invalid frame", "error", err)
		return false
	}

	for _, m := range msgs {
		switch msg := m.(type) {
		case signalr.InvocationMessage:
			if err := hc.invoke(msg); err != nil {
				return false
			}
		case signalr.CloseMessage:
			return false
		case signalr.CancelInvocationMessage, signalr.PingMessage:
		}
	}
	return true
}

func (hc *hubConn) invoke(msg signalr.InvocationMessage) error {
	m, ok := methods[strings.ToLower(msg.Target)]
	if !ok {
		return hc.fail(msg.InvocationID, fmt.Sprintf("Unknown hub method '%s'", msg.Target))
	}

	switch {
	case m.streaming && !msg.Streaming:
		return hc.fail(msg.InvocationID, fmt.Sprintf("The client attempted to invoke the streaming '%s' method in a non-streaming fashion.", m.name))
	case !m.streaming && msg.Streaming:
		return hc.fail(msg.InvocationID, fmt.Sprintf("The client attempted to invoke the non-streaming '%s' method in a streaming fashion.", m.name))
	}

	args := make([]signalr.Payload, len(msg.Arguments))
	for i, a := range msg.Arguments {
		args[i], _ = a.(signalr.Payload)
	}

	return m.call(hc, msg.InvocationID, args)
}

// fail completes the invocation with an error.  Fire-and-forget calls get nothing back.
func (hc *hubConn) fail(id, text string) error {
	if id == "" {
		return nil
	}
	return hc.write(signalr.CompletionMessage{InvocationID: id, Error: text})
}

func (hc *hubConn) complete(id string, result interface{}, hasResult bool) error {
	if id == "" {
		return nil
	}
	return hc.write(signalr.CompletionMessage{InvocationID: id, Result: result, HasResult: hasResult})
}

func (hc *hubConn) push(target string, args ...interface{}) error {
	return hc.write(signalr.InvocationMessage{Target: target, Arguments: args})
}

func (hc *hubConn) stream(id string, items []interface{}, errText string) error {
	for _, item := range items {
		if err := hc.write(signalr.StreamItemMessage{InvocationID: id, Item: item}); err != nil {
			return err
		}
	}
	if errText != "" {
		return hc.fail(id, errText)
	}
	return hc.complete(id, nil, false)
}
