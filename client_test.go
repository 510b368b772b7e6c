package signalr

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// TestNewDefault test the constructor with a default config
func TestNewDefault(t *testing.T) {
	//Assemble
	cfg := Config{}

	//Act
	conn := New(cfg)

	//Assert
	if conn == nil {
		t.Fatal("constructor returning nil")
	}

	cast, ok := conn.(*client)
	if !ok {
		t.Fatalf("constructor returning wierd type: %T", conn)
	}

	if Disconnected != cast.state {
		t.Errorf("default state expected to be %+v, received %+v", Disconnected, cast.state)
	}

	if cast.handlers == nil {
		t.Errorf("default dispatch table expected.  <nil> found")
	}

	sanitizedCfg := cast.config

	if _, ok := sanitizedCfg.Protocol.(JSONProtocol); !ok {
		t.Errorf("default protocol expected to be json, found %T", sanitizedCfg.Protocol)
	}

	if sanitizedCfg.HandshakeTimeout != defaultHandshakeTimeout {
		t.Errorf("default handshake timeout - expected %s, found %s", defaultHandshakeTimeout, sanitizedCfg.HandshakeTimeout)
	}

	if sanitizedCfg.Timeout != 0 {
		t.Errorf("server timeout expected to be disabled by default, found %s", sanitizedCfg.Timeout)
	}

	if sanitizedCfg.Logger == nil || sanitizedCfg.TracerProvider == nil {
		t.Errorf("default logger and tracer provider expected")
	}

	if conn.ConnectionID() != "" {
		t.Errorf("no connection id expected while disconnected, found %q", conn.ConnectionID())
	}
}

// TestNewCustom test the constructor with a custom config
func TestNewCustom(t *testing.T) {
	//Assemble
	logger := slog.Default()
	cfg := Config{
		Transport:        newFakeTransport(),
		Protocol:         CBORProtocol{},
		Timeout:          time.Minute,
		HandshakeTimeout: time.Hour,
		Logger:           logger,
	}

	//Act
	cast := New(cfg).(*client)

	//Assert
	sanitizedCfg := cast.config

	if _, ok := sanitizedCfg.Protocol.(CBORProtocol); !ok {
		t.Errorf("custom protocol expected to survive, found %T", sanitizedCfg.Protocol)
	}

	if sanitizedCfg.HandshakeTimeout != time.Hour {
		t.Errorf("handshake timeout - expected %s, found %s", time.Hour, sanitizedCfg.HandshakeTimeout)
	}

	if sanitizedCfg.Timeout != time.Minute {
		t.Errorf("server timeout - expected %s, found %s", time.Minute, sanitizedCfg.Timeout)
	}

	if sanitizedCfg.Logger != logger {
		t.Errorf("custom logger expected to survive")
	}
}

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		Disconnected:        "disconnected",
		Connecting:          "connecting",
		Connected:           "connected",
		ConnectionState(42): "unknown",
	}

	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("state %d - expected %q, got %q", int(state), want, got)
		}
	}
}

func TestCallsRejectedWhenNotConnected(t *testing.T) {
	//Assemble
	conn := New(Config{Transport: newFakeTransport()})
	ctx := context.Background()

	//Act
	_, invokeErr := conn.Invoke(ctx, "Echo", "x")
	sendErr := conn.Send(ctx, "Echo", "x")
	_, streamErr := conn.Stream(ctx, StreamObserver{}, "Stream")

	//Assert
	for op, err := range map[string]error{"invoke": invokeErr, "send": sendErr, "stream": streamErr} {
		se, ok := err.(*StateError)
		if !ok {
			t.Errorf("%s: expected *StateError, got %T (%v)", op, err, err)
			continue
		}
		if se.Op != op || se.State != Disconnected {
			t.Errorf("%s: unexpected state error %+v", op, se)
		}
	}
}

func TestStopWhenDisconnectedIsNoop(t *testing.T) {
	conn := New(Config{Transport: newFakeTransport()})
	closes := recordCloses(conn)

	if err := conn.Stop(context.Background()); err != nil {
		t.Fatalf("stop on a disconnected connection failed: %s", err)
	}
	if closes.count() != 0 {
		t.Errorf("no close notification expected, got %d", closes.count())
	}
}

func TestCloseCallbacksRunInRegistrationOrder(t *testing.T) {
	//Assemble
	transport := newFakeTransport()
	conn := New(Config{Transport: transport})

	var order []int
	conn.OnClose(func(error) { order = append(order, 1) })
	conn.OnClose(nil)
	conn.OnClose(func(error) { order = append(order, 2) })
	startConnected(t, conn, transport)

	//Act
	if err := conn.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	//Assert
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected callbacks 1 then 2 once each, got %v", order)
	}
}
