package signalr

import (
	"errors"
	"testing"
)

func TestServerErrorClassification(t *testing.T) {
	cases := []struct {
		text      string
		violation bool
		target    string
		streaming bool
	}{
		{"An error occurred.", false, "", false},
		{"Unknown hub method 'nope'", false, "", false},
		{"The client attempted to invoke the streaming 'Stream' method in a non-streaming fashion.", true, "Stream", true},
		{"The client attempted to invoke the non-streaming 'Echo' method in a streaming fashion.", true, "Echo", false},
		{"An unexpected error occurred invoking 'x'. The client attempted to invoke the streaming 'EmptyStream' method in a non-streaming fashion.", true, "EmptyStream", true},
	}

	for _, c := range cases {
		err := serverError(c.text)

		if err.Error() != c.text {
			t.Errorf("server text must be kept verbatim, expected %q, got %q", c.text, err.Error())
		}

		var pve *ProtocolViolationError
		if got := errors.As(err, &pve); got != c.violation {
			t.Errorf("%q: violation expected %t, got %t", c.text, c.violation, got)
			continue
		}
		if !c.violation {
			if _, ok := err.(ServerInvocationError); !ok {
				t.Errorf("%q: expected ServerInvocationError, got %T", c.text, err)
			}
			continue
		}
		if pve.Target != c.target || pve.Streaming != c.streaming {
			t.Errorf("%q: unexpected violation %+v", c.text, pve)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("eof")

	cases := map[string]struct {
		err  error
		want string
	}{
		"connect":      {ConnectError("no transport"), "ConnectError: no transport"},
		"dial":         {SocketConnectionError("refused"), "SocketConnectionError: refused"},
		"socket":       {SocketError("reset"), "SocketError: reset"},
		"state":        {&StateError{Op: "invoke", State: Connecting}, "StateError: cannot invoke while connection is connecting"},
		"handshake":    {&HandshakeError{Reason: "rejected"}, "HandshakeError: rejected"},
		"handshake+":   {&HandshakeError{Reason: "rejected", Err: cause}, "HandshakeError: rejected: eof"},
		"transport":    {&TransportError{Err: cause}, "TransportError: eof"},
		"closed":       {&ConnectionClosedError{}, "ConnectionClosedError: invocation canceled due to connection being closed"},
		"closed+":      {&ConnectionClosedError{Err: cause}, "ConnectionClosedError: eof"},
		"server close": {ServerCloseError("bye"), "Server returned an error on close: bye"},
		"violation":    {&ProtocolViolationError{Target: "Stream", Streaming: true}, "The client attempted to invoke the streaming 'Stream' method in a non-streaming fashion."},
	}

	for name, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("%s - expected %q, got %q", name, c.want, got)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("eof")
	err := &ConnectionClosedError{Err: &TransportError{Err: cause}}

	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable through the chain")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("transport error not reachable through the chain")
	}

	if !errors.Is(&HandshakeError{Err: cause}, cause) {
		t.Errorf("handshake error should unwrap its cause")
	}
}
