package signalr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

const cancelWriteTimeout = 5 * time.Second

// closeEvent queued behind any frames already received, so teardown sees them first.
type closeEvent struct {
	cause error
}

// session one connection cycle: from Start until the close callbacks ran.
// Every inbound frame goes through one FIFO drained by a single goroutine (run).
type session struct {
	id        string
	client    *client
	transport Transport
	protocol  Protocol
	logger    *slog.Logger
	metrics   *Metrics
	calls     *registry

	writeMu sync.Mutex

	inboundMu sync.Mutex
	inbound   *queue.Queue
	signal    chan struct{}

	lastReceived atomic.Int64

	shutdownOnce sync.Once
	closing      atomic.Bool
	abortOpen    context.CancelFunc

	// handshake result, written once by run
	handshake       chan error
	handshakeDone   bool
	handshakeFailed bool
	handshakeSent   atomic.Int64

	stopMonitor chan struct{}
	done        chan struct{}
	cause       error
}

func newSession(c *client) *session {
	id := newConnectionID()

	return &session{
		id:          id,
		client:      c,
		transport:   c.config.Transport,
		protocol:    c.config.Protocol,
		logger:      c.logger.With("connection_id", id),
		metrics:     c.config.Metrics,
		calls:       newRegistry(),
		inbound:     queue.New(),
		signal:      make(chan struct{}, 1),
		handshake:   make(chan error, 1),
		stopMonitor: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func newConnectionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// receive transport callback.  Only stamps and queues, never blocks on delivery.
func (s *session) receive(frame []byte) {
	s.lastReceived.Store(time.Now().UnixNano())
	s.metrics.received()
	s.enqueue(frame)
}

// transportClosed transport callback for a closure the engine did not ask for.
func (s *session) transportClosed(err error) {
	if err != nil {
		err = &TransportError{Err: err}
	}
	s.shutdown(err)
}

func (s *session) enqueue(ev interface{}) {
	s.inboundMu.Lock()
	s.inbound.Add(ev)
	s.inboundMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *session) dequeue() (interface{}, bool) {
	s.inboundMu.Lock()
	defer s.inboundMu.Unlock()

	if s.inbound.Length() == 0 {
		return nil, false
	}
	return s.inbound.Remove(), true
}

// shutdown starts teardown with cause.  Only the first call counts.
func (s *session) shutdown(cause error) {
	s.shutdownOnce.Do(func() {
		s.closing.Store(true)
		if s.abortOpen != nil {
			s.abortOpen()
		}
		s.enqueue(closeEvent{cause: cause})
	})
}

// run is the delivery goroutine.
func (s *session) run() {
	for {
		ev, ok := s.dequeue()
		if !ok {
			<-s.signal
			continue
		}

		switch e := ev.(type) {
		case []byte:
			s.handleFrame(e)
		case closeEvent:
			s.teardown(e.cause)
			return
		}
	}
}

func (s *session) handleFrame(frame []byte) {
	if s.handshakeFailed {
		return
	}

	if !s.handshakeDone {
		resp, rest, err := ParseHandshakeResponse(frame)
		switch {
		case err != nil:
			s.failHandshake(&HandshakeError{Reason: "invalid handshake response", Err: err})
			return
		case resp.Error != "":
			s.failHandshake(&HandshakeError{Reason: resp.Error})
			return
		}

		s.handshakeDone = true
		s.metrics.handshake(time.Since(time.Unix(0, s.handshakeSent.Load())))

		// Connected before anything batched behind the response is handled
		if !s.client.markConnected(s) {
			s.handshakeFailed = true
			s.handshake <- &HandshakeError{Reason: "connection closed during handshake"}
			return
		}
		s.handshake <- nil

		if len(rest) == 0 {
			return
		}
		frame = rest
	}

	msgs, err := s.protocol.Decode(frame)
	for _, m := range msgs {
		s.handleMessage(m)
	}

	if err != nil {
		s.logger.Error("unable to decode frame", "error", err)
		s.shutdown(fmt.Errorf("invalid frame: %w", err))
	}
}

func (s *session) failHandshake(err error) {
	s.handshakeFailed = true
	s.handshake <- err
	s.shutdown(err)
}

func (s *session) handleMessage(m Message) {
	switch msg := m.(type) {
	case InvocationMessage:
		if msg.InvocationID != "" {
			s.logger.Warn("dropping invocation that expects a client result", "target", msg.Target)
			return
		}
		if n := s.client.handlers.dispatch(msg); n == 0 {
			s.logger.Debug("no handler registered", "target", msg.Target)
		}
	case StreamItemMessage:
		s.streamItem(msg)
	case CompletionMessage:
		s.completion(msg)
	case PingMessage:
	case CloseMessage:
		var cause error
		if msg.Error != "" {
			cause = ServerCloseError(msg.Error)
		}
		s.shutdown(cause)
	default:
		s.logger.Warn("ignoring unexpected message", "type", m.Type())
	}
}

func (s *session) streamItem(m StreamItemMessage) {
	call := s.calls.get(m.InvocationID)
	if call == nil {
		s.logger.Debug("stream item for unknown invocation", "invocation_id", m.InvocationID)
		return
	}

	if !call.streaming {
		if s.calls.remove(call.id) != nil {
			call.result <- callResult{err: &ProtocolViolationError{Target: call.target, Streaming: true}}
		}
		return
	}

	call.items++
	call.sub.next(asPayload(m.Item))
}

func (s *session) completion(m CompletionMessage) {
	call := s.calls.remove(m.InvocationID)
	if call == nil {
		s.logger.Debug("completion for unknown invocation", "invocation_id", m.InvocationID)
		return
	}

	if !call.streaming {
		if m.Error != "" {
			call.result <- callResult{err: serverError(m.Error)}
			return
		}
		var value Payload
		if m.HasResult {
			value = asPayload(m.Result)
		}
		call.result <- callResult{value: value}
		return
	}

	s.metrics.streamClosed()

	switch {
	case m.Error != "":
		call.sub.fail(serverError(m.Error))
	case m.HasResult && call.items == 0:
		call.sub.fail(&ProtocolViolationError{Target: call.target})
	default:
		call.sub.complete()
	}
}

// teardown runs once per cycle, on the delivery goroutine.
func (s *session) teardown(cause error) {
	close(s.stopMonitor)

	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close", "error", err)
	}

	s.cause = cause
	closedErr := &ConnectionClosedError{Err: cause}

	for _, call := range s.calls.drain(closedErr) {
		if call.streaming {
			s.metrics.streamClosed()
			call.sub.fail(closedErr)
			continue
		}
		call.result <- callResult{err: closedErr}
	}

	s.client.detach(s)
	s.metrics.closed(cause)

	if cause != nil {
		s.logger.Info("connection closed", "error", cause)
	} else {
		s.logger.Info("connection closed")
	}

	s.client.notifyClose(cause)
	close(s.done)
}

func (s *session) send(ctx context.Context, m Message) error {
	frame, err := s.protocol.Encode(m)
	if err != nil {
		return err
	}
	return s.write(ctx, frame)
}

// write serializes frames onto the transport.  A failed write is fatal: the transport
// can't be trusted to frame anything after it.
func (s *session) write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closing.Load() {
		return &ConnectionClosedError{}
	}

	if err := s.transport.Send(ctx, frame); err != nil {
		terr := &TransportError{Err: err}
		s.shutdown(terr)
		return terr
	}

	s.metrics.sent()
	return nil
}

// cancelStream drops the stream locally and tells the hub, best effort.
func (s *session) cancelStream(id string) {
	if s.calls.remove(id) == nil {
		return
	}
	s.metrics.streamClosed()

	ctx, cancel := context.WithTimeout(context.Background(), cancelWriteTimeout)
	defer cancel()

	if err := s.send(ctx, CancelInvocationMessage{InvocationID: id}); err != nil {
		s.logger.Debug("unable to send stream cancellation", "invocation_id", id, "error", err)
	}
}
