package signalr

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *client) Start(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "signalr.start",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("signalr.protocol", c.config.Protocol.Name())),
	)
	defer span.End()

	err := c.start(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (c *client) start(ctx context.Context) error {
	if c.config.Transport == nil {
		return ConnectError("no transport configured")
	}

	s := newSession(c)
	openCtx, abort := context.WithCancel(ctx)
	s.abortOpen = abort

	c.stateMutex.Lock()
	if c.state != Disconnected {
		state := c.state
		c.stateMutex.Unlock()
		abort()
		return ConnectError(fmt.Sprintf("cannot start a connection that is %s", state))
	}
	c.state = Connecting
	c.session = s
	c.stateMutex.Unlock()

	go s.run()

	s.logger.Info("connecting")

	// from here on every failure goes through teardown, so the close callbacks fire once
	fail := func(err error) error {
		s.shutdown(err)
		<-s.done
		return err
	}

	var token string
	if c.config.AccessTokenProvider != nil {
		var err error
		if token, err = c.config.AccessTokenProvider(openCtx); err != nil {
			return fail(&HandshakeError{Reason: "unable to acquire access token", Err: err})
		}
	}

	err := s.transport.Open(openCtx, OpenOptions{
		AccessToken: token,
		Format:      s.protocol.Format(),
		Receive:     s.receive,
		Closed:      s.transportClosed,
	})
	if err != nil {
		return fail(&TransportError{Err: err})
	}

	request, err := EncodeHandshakeRequest(s.protocol)
	if err != nil {
		return fail(&HandshakeError{Reason: "unable to encode handshake request", Err: err})
	}

	s.handshakeSent.Store(time.Now().UnixNano())
	if err = s.write(ctx, request); err != nil {
		return fail(&HandshakeError{Reason: "unable to send handshake request", Err: err})
	}

	timer := time.NewTimer(c.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case err = <-s.handshake:
	case <-s.done:
		// the frame that completed the handshake may also have closed the connection
		select {
		case err = <-s.handshake:
		default:
			return &HandshakeError{Reason: "connection closed during handshake", Err: s.cause}
		}
	case <-timer.C:
		err = &HandshakeError{Reason: "server did not respond to the handshake in time"}
	case <-ctx.Done():
		err = &HandshakeError{Reason: "handshake canceled", Err: ctx.Err()}
	}
	if err != nil {
		return fail(err)
	}

	if c.config.Timeout > 0 {
		go s.monitor(c.config.Timeout)
	}

	s.logger.Info("connected")
	return nil
}

func (c *client) Stop(ctx context.Context) error {
	c.stateMutex.RLock()
	s := c.session
	c.stateMutex.RUnlock()

	if s == nil {
		return nil
	}

	s.logger.Info("stopping")
	s.shutdown(nil)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
