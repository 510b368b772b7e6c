package signalr

import (
	"context"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// fakeTransport scripted in-memory transport.  Frames written by the client land on sent,
// the test plays the hub with deliver and drop.
type fakeTransport struct {
	mu      sync.Mutex
	opts    OpenOptions
	opened  int
	closed  int
	openErr error
	sendErr error

	sent chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan []byte, 256)}
}

func (f *fakeTransport) Open(ctx context.Context, opts OpenOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return f.openErr
	}
	f.opts = opts
	f.opened++
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.sent <- append([]byte(nil), frame...)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *fakeTransport) options() OpenOptions {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.opts
}

func (f *fakeTransport) deliver(frame []byte) {
	f.options().Receive(frame)
}

func (f *fakeTransport) drop(err error) {
	f.options().Closed(err)
}

// next frame written by the client
func (f *fakeTransport) next(t *testing.T) []byte {
	t.Helper()

	select {
	case frame := <-f.sent:
		return frame
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the client to send a frame")
	}
	return nil
}

// nextMessage next frame decoded as a single JSON message
func (f *fakeTransport) nextMessage(t *testing.T) Message {
	t.Helper()

	msgs, err := JSONProtocol{}.Decode(f.next(t))
	if err != nil {
		t.Fatalf("client sent an undecodable frame: %s", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message per frame, got %d", len(msgs))
	}
	return msgs[0]
}

func (f *fakeTransport) nextInvocation(t *testing.T) InvocationMessage {
	t.Helper()

	m := f.nextMessage(t)
	inv, ok := m.(InvocationMessage)
	if !ok {
		t.Fatalf("expected an invocation, got %T", m)
	}
	return inv
}

func (f *fakeTransport) reply(t *testing.T, msgs ...Message) {
	t.Helper()

	var frame []byte
	for _, m := range msgs {
		data, err := JSONProtocol{}.Encode(m)
		if err != nil {
			t.Fatalf("unable to encode %T: %s", m, err)
		}
		frame = append(frame, data...)
	}
	f.deliver(frame)
}

// startConnected starts c against f and answers the handshake.
func startConnected(t *testing.T, c Connection, f *fakeTransport) {
	t.Helper()

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background()) }()

	f.next(t)
	f.deliver([]byte("{}\x1e"))

	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("start failed: %s", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("start did not return")
	}
}

// closeRecorder collects close notifications.
type closeRecorder struct {
	mu     sync.Mutex
	errs   []error
	signal chan struct{}
}

func recordCloses(c Connection) *closeRecorder {
	r := &closeRecorder{signal: make(chan struct{}, 16)}
	c.OnClose(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
		r.signal <- struct{}{}
	})
	return r
}

func (r *closeRecorder) wait(t *testing.T, within time.Duration) error {
	t.Helper()

	select {
	case <-r.signal:
	case <-time.After(within):
		t.Fatalf("close notification did not fire within %s", within)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[len(r.errs)-1]
}

func (r *closeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.errs)
}

func decodeString(t *testing.T, p Payload) string {
	t.Helper()

	if p == nil {
		t.Fatal("expected a payload, got nil")
	}
	var s string
	if err := p.Decode(&s); err != nil {
		t.Fatalf("unable to decode payload: %s", err)
	}
	return s
}
