package signalr

import (
	"context"
	"testing"
	"time"
)

func TestCheckInterval(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{100 * time.Millisecond, 50 * time.Millisecond},
		{30 * time.Second, time.Second},
		{2 * time.Millisecond, 5 * time.Millisecond},
		{2 * time.Second, time.Second},
	}

	for _, c := range cases {
		if got := checkInterval(c.timeout); got != c.want {
			t.Errorf("checkInterval(%s) - expected %s, got %s", c.timeout, c.want, got)
		}
	}
}

func TestServerTimeout(t *testing.T) {
	//Assemble
	transport := newFakeTransport()
	conn := New(Config{Transport: transport, Timeout: 100 * time.Millisecond})
	closes := recordCloses(conn)

	//Act
	started := time.Now()
	startConnected(t, conn, transport)
	err := closes.wait(t, time.Second)

	//Assert
	if err != ErrServerTimeout {
		t.Fatalf("expected ErrServerTimeout, got %v", err)
	}
	if err.Error() != "Server timeout elapsed without receiving a message from the server." {
		t.Errorf("unexpected message %q", err.Error())
	}
	if elapsed := time.Since(started); elapsed < 100*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("timeout fired after %s", elapsed)
	}
	if conn.State() != Disconnected {
		t.Errorf("expected Disconnected, got %s", conn.State())
	}
}

func TestServerTimeoutFailsPendingInvoke(t *testing.T) {
	transport := newFakeTransport()
	conn := New(Config{Transport: transport, Timeout: 60 * time.Millisecond})
	startConnected(t, conn, transport)

	_, err := conn.Invoke(context.Background(), "Slow")

	cce, ok := err.(*ConnectionClosedError)
	if !ok {
		t.Fatalf("expected *ConnectionClosedError, got %T (%v)", err, err)
	}
	if cce.Err != ErrServerTimeout {
		t.Errorf("expected the timeout as cause, got %v", cce.Err)
	}
}

func TestPingsKeepConnectionAlive(t *testing.T) {
	transport := newFakeTransport()
	conn := New(Config{Transport: transport, Timeout: 100 * time.Millisecond})
	closes := recordCloses(conn)
	startConnected(t, conn, transport)

	ticker := time.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(400 * time.Millisecond)
	for running := true; running; {
		select {
		case <-ticker.C:
			transport.reply(t, PingMessage{})
		case <-deadline:
			running = false
		}
	}

	if closes.count() != 0 || conn.State() != Connected {
		t.Fatalf("connection dropped despite regular pings, state %s", conn.State())
	}

	conn.Stop(context.Background())
}

func TestZeroTimeoutDisablesCheck(t *testing.T) {
	transport := newFakeTransport()
	conn := New(Config{Transport: transport})
	closes := recordCloses(conn)
	startConnected(t, conn, transport)

	time.Sleep(150 * time.Millisecond)

	if closes.count() != 0 {
		t.Errorf("no timeout expected when disabled")
	}
	conn.Stop(context.Background())
}
