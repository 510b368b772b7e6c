package signalr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *client) span(ctx context.Context, kind, target string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "signalr."+kind+" "+target,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("signalr.target", target),
			attribute.String("signalr.kind", kind),
		),
	)
}

func (c *client) finish(span trace.Span, err error) {
	if err != nil {
		c.config.Metrics.failed(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Invoke sends an invocation with a fresh correlation id and waits for the matching completion.
func (c *client) Invoke(ctx context.Context, target string, args ...interface{}) (Payload, error) {
	ctx, span := c.span(ctx, "invoke", target)

	value, err := c.invoke(ctx, target, args)
	c.finish(span, err)

	return value, err
}

func (c *client) invoke(ctx context.Context, target string, args []interface{}) (Payload, error) {
	s, err := c.connected("invoke")
	if err != nil {
		return nil, err
	}
	c.config.Metrics.invoked("invoke")

	call, err := s.calls.add(target, nil)
	if err != nil {
		return nil, err
	}

	err = s.send(ctx, InvocationMessage{
		InvocationID: call.id,
		Target:       target,
		Arguments:    args,
	})
	if err != nil {
		s.calls.remove(call.id)
		return nil, err
	}

	select {
	case r := <-call.result:
		return r.value, r.err
	case <-ctx.Done():
		s.calls.remove(call.id)
		return nil, ctx.Err()
	}
}

// Send fire and forget.  No correlation id, so the hub never answers.
func (c *client) Send(ctx context.Context, target string, args ...interface{}) error {
	ctx, span := c.span(ctx, "send", target)

	err := c.sendInvocation(ctx, target, args)
	c.finish(span, err)

	return err
}

func (c *client) sendInvocation(ctx context.Context, target string, args []interface{}) error {
	s, err := c.connected("send")
	if err != nil {
		return err
	}
	c.config.Metrics.invoked("send")

	return s.send(ctx, InvocationMessage{Target: target, Arguments: args})
}

// Stream opens a server stream.  The span covers the request only, not the life of the stream.
func (c *client) Stream(ctx context.Context, observer StreamObserver, target string, args ...interface{}) (*Subscription, error) {
	ctx, span := c.span(ctx, "stream", target)

	sub, err := c.stream(ctx, observer, target, args)
	c.finish(span, err)

	return sub, err
}

func (c *client) stream(ctx context.Context, observer StreamObserver, target string, args []interface{}) (*Subscription, error) {
	s, err := c.connected("stream")
	if err != nil {
		return nil, err
	}
	c.config.Metrics.invoked("stream")

	sub := &Subscription{
		target:   target,
		observer: observer,
		session:  s,
	}

	call, err := s.calls.add(target, sub)
	if err != nil {
		return nil, err
	}
	s.metrics.streamOpened()

	err = s.send(ctx, InvocationMessage{
		InvocationID: call.id,
		Target:       target,
		Arguments:    args,
		Streaming:    true,
	})
	if err != nil {
		if s.calls.remove(call.id) != nil {
			s.metrics.streamClosed()
		}
		return nil, err
	}

	return sub, nil
}
